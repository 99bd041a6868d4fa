package domain

import "time"

// AuthorizationCode is kept in the ephemeral store keyed by the hash of the
// opaque code handed to the client.
type AuthorizationCode struct {
	Hash                string    `json:"-"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scopes              []string  `json:"scopes"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	AMR                 []string  `json:"amr"`
	OrgID               string    `json:"org_id,omitempty"`
	SessionID           string    `json:"session_id"`
	ExpiresAt           time.Time `json:"expires_at"`
}

func (c *AuthorizationCode) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt) }

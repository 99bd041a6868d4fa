package domain

import (
	"slices"
	"time"
)

// ImpersonationGrant lets ActorID obtain tokens for TargetID through
// ClientID. Single use, kept in the ephemeral store.
type ImpersonationGrant struct {
	ID        string    `json:"-"`
	ActorID   string    `json:"actor_id"`
	TargetID  string    `json:"target_id"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Consent records the scopes a user approved for a client.
type Consent struct {
	UserID    string
	ClientID  string
	Scopes    []string
	UpdatedAt time.Time
}

// Covers reports whether every requested scope was already approved.
func (c *Consent) Covers(requested []string) bool {
	if c == nil {
		return false
	}
	for _, s := range requested {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}

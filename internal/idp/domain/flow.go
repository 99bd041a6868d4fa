package domain

import (
	"errors"
	"fmt"
	"time"
)

// FlowStatus is the state of an authorization flow session.
type FlowStatus string

const (
	FlowInitiated       FlowStatus = "initiated"
	FlowCredentialCheck FlowStatus = "credential_check"
	FlowMFARequired     FlowStatus = "mfa_required"
	FlowConsentRequired FlowStatus = "consent_required"
	FlowCodeIssued      FlowStatus = "code_issued"
	FlowRedeemed        FlowStatus = "redeemed"

	FlowDenied  FlowStatus = "denied"
	FlowExpired FlowStatus = "expired"
	FlowLocked  FlowStatus = "locked"
)

// ErrIllegalTransition is returned by FlowSession.Transition.
var ErrIllegalTransition = errors.New("domain: illegal flow transition")

var flowTransitions = map[FlowStatus][]FlowStatus{
	FlowInitiated:       {FlowCredentialCheck},
	FlowCredentialCheck: {FlowMFARequired, FlowConsentRequired, FlowCodeIssued},
	FlowMFARequired:     {FlowConsentRequired, FlowCodeIssued},
	FlowConsentRequired: {FlowCodeIssued},
	FlowCodeIssued:      {FlowRedeemed},
}

func (s FlowStatus) Terminal() bool {
	switch s {
	case FlowRedeemed, FlowDenied, FlowExpired, FlowLocked:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is allowed. Denied, expired and
// locked are reachable from every non-terminal state.
func CanTransition(from, to FlowStatus) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case FlowDenied, FlowExpired, FlowLocked:
		return true
	}
	for _, next := range flowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FlowSession is the server side state of one /authorize interaction. It is
// persisted in the ephemeral store under ID.
type FlowSession struct {
	ID     string     `json:"id"`
	Status FlowStatus `json:"status"`

	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	State               string   `json:"state,omitempty"`
	RequestedScopes     []string `json:"requested_scopes"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	Locale              string   `json:"locale,omitempty"`
	OrgID               string   `json:"org_id,omitempty"`
	Nonce               string   `json:"nonce,omitempty"`

	UserID         string       `json:"user_id,omitempty"`
	LockoutSubject string       `json:"lockout_subject,omitempty"`
	IP             string       `json:"ip,omitempty"`
	AMR            []string     `json:"amr,omitempty"`
	Factors        []FactorKind `json:"factors,omitempty"`
	Factor         FactorKind   `json:"factor,omitempty"`

	PasskeyChallenge string   `json:"passkey_challenge,omitempty"`
	ExternalIdP      string   `json:"external_idp,omitempty"`
	GrantedScopes    []string `json:"granted_scopes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Transition moves the session to next or returns ErrIllegalTransition.
func (f *FlowSession) Transition(next FlowStatus) error {
	if !CanTransition(f.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, f.Status, next)
	}
	f.Status = next
	return nil
}

func (f *FlowSession) Expired(now time.Time) bool { return !now.Before(f.ExpiresAt) }

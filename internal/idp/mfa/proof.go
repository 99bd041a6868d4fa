// Package mfa verifies and enrolls second factors: email one-time codes,
// TOTP, passkeys and recovery codes.
package mfa

import (
	"errors"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

var (
	ErrCodeExpired       = errors.New("mfa: code expired")
	ErrCodeMismatch      = errors.New("mfa: code mismatch")
	ErrReplayDetected    = errors.New("mfa: replay detected")
	ErrAssertionInvalid  = errors.New("mfa: invalid passkey assertion")
	ErrFactorNotEnrolled = errors.New("mfa: factor not enrolled")
	ErrFactorDisabled    = errors.New("mfa: factor disabled")
	ErrAlreadyEnrolled   = errors.New("mfa: factor already enrolled")
	ErrUnsupportedProof  = errors.New("mfa: unsupported proof")
	ErrEmailNotVerified  = errors.New("mfa: email address not verified")
	ErrInvalidEnrollment = errors.New("mfa: invalid enrollment request")
)

// Proof is the closed set of factor proofs. Only types in this package
// implement it.
type Proof interface {
	Kind() domain.FactorKind
	proof()
}

type EmailOTPProof struct{ Code string }

type TOTPProof struct{ Code string }

// PasskeyProof is a WebAuthn assertion. Byte fields are the raw values the
// authenticator returned.
type PasskeyProof struct {
	CredentialID      string
	AuthenticatorData []byte
	ClientDataJSON    []byte
	Signature         []byte
}

type RecoveryCodeProof struct{ Code string }

func (EmailOTPProof) Kind() domain.FactorKind     { return domain.FactorEmailOTP }
func (TOTPProof) Kind() domain.FactorKind         { return domain.FactorTOTP }
func (PasskeyProof) Kind() domain.FactorKind      { return domain.FactorPasskey }
func (RecoveryCodeProof) Kind() domain.FactorKind { return domain.FactorRecovery }

func (EmailOTPProof) proof()     {}
func (TOTPProof) proof()         {}
func (PasskeyProof) proof()      {}
func (RecoveryCodeProof) proof() {}

// AMR returns the authentication method reference a verified proof of kind
// adds to a session.
func AMR(kind domain.FactorKind) string {
	switch kind {
	case domain.FactorEmailOTP, domain.FactorTOTP:
		return domain.AMROTP
	case domain.FactorPasskey:
		return domain.AMRPasskey
	case domain.FactorRecovery:
		return domain.AMRRecovery
	}
	return ""
}

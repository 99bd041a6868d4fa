package domain

import "time"

type FactorKind string

const (
	FactorEmailOTP FactorKind = "email_otp"
	FactorTOTP     FactorKind = "totp"
	FactorPasskey  FactorKind = "passkey"
	FactorRecovery FactorKind = "recovery"
)

func (k FactorKind) Valid() bool {
	switch k {
	case FactorEmailOTP, FactorTOTP, FactorPasskey, FactorRecovery:
		return true
	}
	return false
}

// Factor is one enrolled second factor. Which fields are used depends on
// Kind: Secret holds the TOTP seed, CredentialID, PublicKey and SignCount
// describe a passkey. Recovery codes live in their own table; the recovery
// factor row only records that a set was issued.
type Factor struct {
	ID     string
	UserID string
	Kind   FactorKind

	Secret       string
	CredentialID string
	PublicKey    []byte
	SignCount    uint32

	Verified   bool
	Disabled   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// Usable reports whether the factor may satisfy an MFA step.
func (f Factor) Usable() bool { return f.Verified && !f.Disabled }

type RecoveryCode struct {
	ID        string
	UserID    string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// MFAStatus is derived from a user's factor rows.
type MFAStatus struct {
	EmailOTP          bool `json:"email_otp"`
	TOTP              bool `json:"totp"`
	Passkey           bool `json:"passkey"`
	Recovery          bool `json:"recovery"`
	RecoveryRemaining int  `json:"recovery_remaining"`
}

func (s MFAStatus) Any() bool { return s.EmailOTP || s.TOTP || s.Passkey }

// DeriveMFAStatus folds factor rows into enrollment flags.
func DeriveMFAStatus(factors []Factor, recoveryRemaining int) MFAStatus {
	var s MFAStatus
	for _, f := range factors {
		if !f.Usable() {
			continue
		}
		switch f.Kind {
		case FactorEmailOTP:
			s.EmailOTP = true
		case FactorTOTP:
			s.TOTP = true
		case FactorPasskey:
			s.Passkey = true
		}
	}
	s.RecoveryRemaining = recoveryRemaining
	s.Recovery = recoveryRemaining > 0
	return s
}

package mfa

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	RecoveryCodeCount = 10
	recoveryCodeBytes = 10

	purposePasskeyEnroll = "passkey_enroll"
	enrollChallengeTTL   = 5 * time.Minute
)

// Manager handles enrollment and removal of factors for a signed in user.
type Manager struct {
	Engine *Engine
	// Issuer is shown by authenticator apps next to the account name.
	Issuer string
}

// EnrollRequest carries the client side material for passkey enrollment.
// PublicKey is the DER encoded P-256 SubjectPublicKeyInfo.
type EnrollRequest struct {
	CredentialID string
	PublicKey    []byte
}

// Enrollment is what the user needs to finish enrolling kind.
type Enrollment struct {
	Kind          domain.FactorKind
	Secret        string
	URI           string
	Challenge     string
	CodeSent      bool
	RecoveryCodes []string
}

// Enroll starts enrollment. TOTP returns the secret, email OTP mails a
// code, passkeys return a challenge to sign. Recovery codes are issued at
// once and replace any previous set.
func (m *Manager) Enroll(ctx context.Context, user domain.User, kind domain.FactorKind, req EnrollRequest) (Enrollment, error) {
	e := m.Engine
	now := e.now()
	f := domain.Factor{ID: idx.New().String(), UserID: user.ID, Kind: kind, CreatedAt: now}

	switch kind {
	case domain.FactorTOTP:
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      m.Issuer,
			AccountName: user.Username,
			Period:      totpPeriod,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return Enrollment{}, fmt.Errorf("mfa: generate totp key: %w", err)
		}
		f.Secret = key.Secret()
		if err := m.create(ctx, f); err != nil {
			return Enrollment{}, err
		}
		return Enrollment{Kind: kind, Secret: key.Secret(), URI: key.URL()}, nil

	case domain.FactorEmailOTP:
		if user.Email == "" || !user.EmailVerified {
			return Enrollment{}, ErrEmailNotVerified
		}
		if err := m.create(ctx, f); err != nil {
			return Enrollment{}, err
		}
		if err := e.SendEmailOTP(ctx, user.ID, user.Email, PurposeEnroll); err != nil {
			return Enrollment{}, err
		}
		return Enrollment{Kind: kind, CodeSent: true}, nil

	case domain.FactorPasskey:
		if req.CredentialID == "" {
			return Enrollment{}, fmt.Errorf("%w: credential id required", ErrInvalidEnrollment)
		}
		if _, err := cryptox.ParseP256PublicKey(req.PublicKey); err != nil {
			return Enrollment{}, fmt.Errorf("%w: %v", ErrInvalidEnrollment, err)
		}
		f.CredentialID = req.CredentialID
		f.PublicKey = req.PublicKey
		if err := m.create(ctx, f); err != nil {
			return Enrollment{}, err
		}
		challenge, err := NewPasskeyChallenge()
		if err != nil {
			return Enrollment{}, err
		}
		if err := e.OTP.PutChallenge(ctx, user.ID, purposePasskeyEnroll+":"+req.CredentialID, challenge, enrollChallengeTTL); err != nil {
			return Enrollment{}, err
		}
		return Enrollment{Kind: kind, Challenge: challenge}, nil

	case domain.FactorRecovery:
		codes, err := m.IssueRecoveryCodes(ctx, user.ID)
		if err != nil {
			return Enrollment{}, err
		}
		return Enrollment{Kind: kind, RecoveryCodes: codes}, nil
	}
	return Enrollment{}, ErrUnsupportedProof
}

func (m *Manager) create(ctx context.Context, f domain.Factor) error {
	err := m.Engine.Store.Factors().Create(ctx, f)
	if errors.Is(err, store.ErrAlreadyExists) {
		return ErrAlreadyEnrolled
	}
	return err
}

// Confirm finishes enrollment with a proof produced by the new factor. The
// first confirmed factor also issues recovery codes.
func (m *Manager) Confirm(ctx context.Context, user domain.User, p Proof) (Enrollment, error) {
	e := m.Engine
	var (
		f   domain.Factor
		err error
	)

	switch p := p.(type) {
	case TOTPProof:
		f, err = m.pending(ctx, user.ID, domain.FactorTOTP)
		if err != nil {
			return Enrollment{}, err
		}
		step, ok := matchTOTP(f.Secret, p.Code, e.now())
		if !ok {
			return Enrollment{}, ErrCodeMismatch
		}
		// The confirming code may not be replayed to sign in.
		if _, err := e.OTP.MarkTOTPStep(ctx, f.ID, step, 3*totpPeriod*time.Second); err != nil {
			return Enrollment{}, err
		}
	case EmailOTPProof:
		f, err = m.pending(ctx, user.ID, domain.FactorEmailOTP)
		if err != nil {
			return Enrollment{}, err
		}
		if err := e.verifyEmailOTP(ctx, user.ID, PurposeEnroll, p.Code); err != nil {
			return Enrollment{}, err
		}
	case PasskeyProof:
		f, err = e.Store.Factors().GetPasskey(ctx, user.ID, p.CredentialID)
		if errors.Is(err, store.ErrNotFound) {
			return Enrollment{}, ErrFactorNotEnrolled
		}
		if err != nil {
			return Enrollment{}, err
		}
		if f.Verified {
			return Enrollment{}, ErrAlreadyEnrolled
		}
		challenge, err := e.OTP.TakeChallenge(ctx, user.ID, purposePasskeyEnroll+":"+p.CredentialID)
		if err != nil {
			return Enrollment{}, ErrCodeExpired
		}
		a, err := e.checkAssertion(f, challenge, p)
		if err != nil {
			return Enrollment{}, err
		}
		if a.signCount > 0 {
			if err := e.Store.Factors().AdvanceSignCount(ctx, f.ID, a.signCount, e.now()); err != nil {
				return Enrollment{}, err
			}
		}
	default:
		return Enrollment{}, ErrUnsupportedProof
	}

	if err := e.Store.Factors().MarkVerified(ctx, f.ID, e.now()); err != nil {
		return Enrollment{}, err
	}
	e.emit(ctx, audit.Event{Type: audit.MFAEnrolled, UserID: user.ID, Fields: map[string]any{"factor": string(f.Kind)}})

	out := Enrollment{Kind: f.Kind}
	remaining, err := e.Store.RecoveryCodes().Remaining(ctx, user.ID)
	if err != nil {
		return Enrollment{}, err
	}
	if remaining == 0 {
		if out.RecoveryCodes, err = m.IssueRecoveryCodes(ctx, user.ID); err != nil {
			return Enrollment{}, err
		}
	}
	return out, nil
}

func (m *Manager) pending(ctx context.Context, userID string, kind domain.FactorKind) (domain.Factor, error) {
	f, err := m.Engine.Store.Factors().GetByKind(ctx, userID, kind)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Factor{}, ErrFactorNotEnrolled
	}
	if err != nil {
		return domain.Factor{}, err
	}
	if f.Verified {
		return domain.Factor{}, ErrAlreadyEnrolled
	}
	return f, nil
}

// IssueRecoveryCodes replaces the user's recovery codes with a new set and
// returns the plaintext codes. Only hashes are stored.
func (m *Manager) IssueRecoveryCodes(ctx context.Context, userID string) ([]string, error) {
	e := m.Engine
	codes := make([]string, RecoveryCodeCount)
	hashes := make([]string, RecoveryCodeCount)
	for i := range codes {
		c, err := generateRecoveryCode()
		if err != nil {
			return nil, err
		}
		codes[i] = c
		hashes[i] = cryptox.FingerprintToken(NormalizeRecoveryCode(c))
	}

	now := e.now()
	err := e.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RecoveryCodes().Replace(ctx, userID, hashes, now); err != nil {
			return err
		}
		if _, err := tx.Factors().DeleteKind(ctx, userID, domain.FactorRecovery); err != nil {
			return err
		}
		return tx.Factors().Create(ctx, domain.Factor{
			ID: idx.New().String(), UserID: userID, Kind: domain.FactorRecovery,
			Verified: true, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, audit.Event{Type: audit.MFAEnrolled, UserID: userID, Fields: map[string]any{"factor": string(domain.FactorRecovery)}})
	return codes, nil
}

// generateRecoveryCode returns 16 base32 characters in groups of four.
func generateRecoveryCode() (string, error) {
	buf := make([]byte, recoveryCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mfa: generate recovery code: %w", err)
	}
	s := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return s[0:4] + "-" + s[4:8] + "-" + s[8:12] + "-" + s[12:16], nil
}

// Remove deletes every factor of kind. Removing recovery also drops the
// codes.
func (m *Manager) Remove(ctx context.Context, userID string, kind domain.FactorKind) error {
	e := m.Engine
	var n int64
	err := e.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if n, err = tx.Factors().DeleteKind(ctx, userID, kind); err != nil {
			return err
		}
		if kind == domain.FactorRecovery {
			return tx.RecoveryCodes().DeleteAll(ctx, userID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFactorNotEnrolled
	}
	e.emit(ctx, audit.Event{Type: audit.MFARemoved, UserID: userID, Fields: map[string]any{"factor": string(kind)}})
	return nil
}

// Status derives enrollment flags from the user's factors.
func (m *Manager) Status(ctx context.Context, userID string) (domain.MFAStatus, error) {
	e := m.Engine
	factors, err := store.RetryRead(ctx, func(ctx context.Context) ([]domain.Factor, error) {
		return e.Store.Factors().ListByUser(ctx, userID)
	})
	if err != nil {
		return domain.MFAStatus{}, err
	}
	remaining, err := store.RetryRead(ctx, func(ctx context.Context) (int, error) {
		return e.Store.RecoveryCodes().Remaining(ctx, userID)
	})
	if err != nil {
		return domain.MFAStatus{}, err
	}
	return domain.DeriveMFAStatus(factors, remaining), nil
}

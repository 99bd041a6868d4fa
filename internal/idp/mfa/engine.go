package mfa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/ephemeral"
	"github.com/aussiebroadwan/tollgate/internal/idp/mail"
	"github.com/aussiebroadwan/tollgate/internal/idp/policy"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// OTP purposes.
const (
	PurposeLogin  = "login"
	PurposeEnroll = "enroll"
)

const (
	DefaultOTPTTL = 10 * time.Minute
	otpDigits     = 6
	totpPeriod    = 30
)

// OneTimeStore is the ephemeral state the engine needs.
type OneTimeStore interface {
	PutOTP(ctx context.Context, userID, purpose, codeHash string, ttl time.Duration) error
	ConsumeOTP(ctx context.Context, userID, purpose, codeHash string) error
	MarkTOTPStep(ctx context.Context, factorID string, step uint64, ttl time.Duration) (bool, error)
	PutChallenge(ctx context.Context, userID, purpose, challenge string, ttl time.Duration) error
	TakeChallenge(ctx context.Context, userID, purpose string) (string, error)
}

// Engine verifies factor proofs during sign-in.
type Engine struct {
	Store  store.Store
	OTP    OneTimeStore
	Mailer mail.Sender
	Audit  audit.Sink

	// RPID is the WebAuthn relying party id and Origins the accepted
	// clientData origins.
	RPID    string
	Origins []string

	OTPTTL time.Duration
	Now    func() time.Time
}

// Subject is the user a proof is checked for. Challenge is the passkey
// challenge handed out for this step.
type Subject struct {
	UserID    string
	Email     string
	Challenge string
}

type Result struct {
	Kind              domain.FactorKind
	AMR               string
	RecoveryRemaining int
	// ReissueRecovery is set when few recovery codes remain.
	ReissueRecovery bool
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) emit(ctx context.Context, ev audit.Event) {
	if e.Audit != nil {
		e.Audit.Emit(ctx, ev)
	}
}

func (e *Engine) otpTTL() time.Duration {
	if e.OTPTTL > 0 {
		return e.OTPTTL
	}
	return DefaultOTPTTL
}

// Verify checks p for subj. Every failure is one of the package errors or
// a wrapped store.ErrTransient.
func (e *Engine) Verify(ctx context.Context, subj Subject, p Proof) (Result, error) {
	var err error
	res := Result{Kind: p.Kind(), AMR: AMR(p.Kind())}

	switch p := p.(type) {
	case EmailOTPProof:
		err = e.verifyEmailOTP(ctx, subj.UserID, PurposeLogin, p.Code)
	case TOTPProof:
		err = e.verifyTOTP(ctx, subj.UserID, p.Code)
	case PasskeyProof:
		err = e.verifyPasskey(ctx, subj.UserID, subj.Challenge, p)
	case RecoveryCodeProof:
		res.RecoveryRemaining, err = e.useRecoveryCode(ctx, subj.UserID, p.Code)
		res.ReissueRecovery = err == nil && policy.ShouldReissueRecovery(res.RecoveryRemaining)
	default:
		err = ErrUnsupportedProof
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// SendEmailOTP issues a fresh code for userID and mails it. A delivery
// failure is logged and the code stays valid so the user can ask again.
func (e *Engine) SendEmailOTP(ctx context.Context, userID, email, purpose string) error {
	if email == "" {
		return ErrEmailNotVerified
	}
	code, err := cryptox.GenerateNumericCode(otpDigits)
	if err != nil {
		return fmt.Errorf("mfa: generate code: %w", err)
	}
	if err := e.OTP.PutOTP(ctx, userID, purpose, cryptox.FingerprintToken(code), e.otpTTL()); err != nil {
		return err
	}

	msg := mail.Message{
		Template:  mail.TemplateEmailOTP,
		Recipient: email,
		Vars:      map[string]string{"code": code, "expires_in": e.otpTTL().String()},
	}
	if err := e.Mailer.Send(ctx, msg); err != nil {
		slogx.FromContext(ctx).Warn("mfa: email otp delivery failed", "user_id", userID, "error", err)
	}
	return nil
}

func (e *Engine) verifyEmailOTP(ctx context.Context, userID, purpose, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrCodeMismatch
	}
	err := e.OTP.ConsumeOTP(ctx, userID, purpose, cryptox.FingerprintToken(code))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ephemeral.ErrNotFound):
		return ErrCodeExpired
	case errors.Is(err, ephemeral.ErrMismatch):
		return ErrCodeMismatch
	default:
		return err
	}
}

func (e *Engine) usableFactor(ctx context.Context, userID string, kind domain.FactorKind) (domain.Factor, error) {
	f, err := store.RetryRead(ctx, func(ctx context.Context) (domain.Factor, error) {
		return e.Store.Factors().GetByKind(ctx, userID, kind)
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.Factor{}, ErrFactorNotEnrolled
	}
	if err != nil {
		return domain.Factor{}, err
	}
	if !f.Usable() {
		return domain.Factor{}, ErrFactorNotEnrolled
	}
	return f, nil
}

func (e *Engine) verifyTOTP(ctx context.Context, userID, code string) error {
	f, err := e.usableFactor(ctx, userID, domain.FactorTOTP)
	if err != nil {
		return err
	}
	step, ok := matchTOTP(f.Secret, code, e.now())
	if !ok {
		return ErrCodeMismatch
	}

	fresh, err := e.OTP.MarkTOTPStep(ctx, f.ID, step, 3*totpPeriod*time.Second)
	if err != nil {
		return err
	}
	if !fresh {
		return ErrReplayDetected
	}
	if err := e.Store.Factors().Touch(ctx, f.ID, e.now()); err != nil {
		slogx.FromContext(ctx).Warn("mfa: touch factor", "factor_id", f.ID, "error", err)
	}
	return nil
}

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// matchTOTP accepts codes from the current step and one step either side.
// It returns the matched step so reuse inside the window can be refused.
func matchTOTP(secret, code string, now time.Time) (uint64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != otpDigits {
		return 0, false
	}
	for _, skew := range []int64{0, -1, 1} {
		at := now.Add(time.Duration(skew*totpPeriod) * time.Second)
		want, err := totp.GenerateCodeCustom(secret, at, totpOpts)
		if err != nil {
			return 0, false
		}
		if cryptox.Equal(want, code) {
			return uint64(at.Unix()) / totpPeriod, true
		}
	}
	return 0, false
}

func (e *Engine) useRecoveryCode(ctx context.Context, userID, code string) (int, error) {
	code = NormalizeRecoveryCode(code)
	if code == "" {
		return 0, ErrCodeMismatch
	}
	err := e.Store.RecoveryCodes().Use(ctx, userID, cryptox.FingerprintToken(code), e.now())
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrCodeMismatch
	}
	if err != nil {
		return 0, err
	}
	remaining, err := store.RetryRead(ctx, func(ctx context.Context) (int, error) {
		return e.Store.RecoveryCodes().Remaining(ctx, userID)
	})
	if err != nil {
		// The code is spent either way; report it as the last one.
		slogx.FromContext(ctx).Warn("mfa: count recovery codes", "user_id", userID, "error", err)
		return 0, nil
	}
	return remaining, nil
}

// NormalizeRecoveryCode strips separators and case so codes can be typed
// loosely.
func NormalizeRecoveryCode(code string) string {
	return strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(code)))
}

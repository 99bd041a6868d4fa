package mfa

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

const (
	authDataMinLen  = 37
	flagUserPresent = 0x01
)

// NewPasskeyChallenge returns a random challenge in the base64url form
// browsers echo back in clientDataJSON.
func NewPasskeyChallenge() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// assertion is the parsed, signature-checked form of a PasskeyProof.
type assertion struct {
	signCount uint32
}

// checkAssertion validates p against the stored credential and the
// expected challenge. It does not look at the counter.
func (e *Engine) checkAssertion(f domain.Factor, challenge string, p PasskeyProof) (assertion, error) {
	if challenge == "" || len(p.AuthenticatorData) < authDataMinLen || len(p.Signature) == 0 {
		return assertion{}, ErrAssertionInvalid
	}

	var cd clientData
	if err := json.Unmarshal(p.ClientDataJSON, &cd); err != nil {
		return assertion{}, fmt.Errorf("%w: client data: %v", ErrAssertionInvalid, err)
	}
	if cd.Type != "webauthn.get" {
		return assertion{}, fmt.Errorf("%w: type %q", ErrAssertionInvalid, cd.Type)
	}
	if !cryptox.Equal(cd.Challenge, challenge) {
		return assertion{}, fmt.Errorf("%w: challenge", ErrAssertionInvalid)
	}
	if !slices.Contains(e.Origins, cd.Origin) {
		return assertion{}, fmt.Errorf("%w: origin %q", ErrAssertionInvalid, cd.Origin)
	}

	ad := p.AuthenticatorData
	rpHash := sha256.Sum256([]byte(e.RPID))
	if !bytes.Equal(ad[:32], rpHash[:]) {
		return assertion{}, fmt.Errorf("%w: rp id", ErrAssertionInvalid)
	}
	if ad[32]&flagUserPresent == 0 {
		return assertion{}, fmt.Errorf("%w: user not present", ErrAssertionInvalid)
	}

	pub, err := cryptox.ParseP256PublicKey(f.PublicKey)
	if err != nil {
		return assertion{}, fmt.Errorf("%w: stored key: %v", ErrAssertionInvalid, err)
	}
	cdHash := sha256.Sum256(p.ClientDataJSON)
	signed := sha256.Sum256(append(slices.Clip(ad), cdHash[:]...))
	if !ecdsa.VerifyASN1(pub, signed[:], p.Signature) {
		return assertion{}, fmt.Errorf("%w: signature", ErrAssertionInvalid)
	}

	return assertion{signCount: binary.BigEndian.Uint32(ad[33:37])}, nil
}

func (e *Engine) verifyPasskey(ctx context.Context, userID, challenge string, p PasskeyProof) error {
	f, err := store.RetryRead(ctx, func(ctx context.Context) (domain.Factor, error) {
		return e.Store.Factors().GetPasskey(ctx, userID, p.CredentialID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrFactorNotEnrolled
	}
	if err != nil {
		return err
	}
	if f.Disabled {
		return ErrFactorDisabled
	}
	if !f.Verified {
		return ErrFactorNotEnrolled
	}

	a, err := e.checkAssertion(f, challenge, p)
	if err != nil {
		return err
	}
	return e.advanceCounter(ctx, f, a.signCount)
}

// advanceCounter enforces a strictly increasing sign counter. A stale or
// repeated counter disables the credential until it is enrolled again.
func (e *Engine) advanceCounter(ctx context.Context, f domain.Factor, count uint32) error {
	if count > f.SignCount {
		err := e.Store.Factors().AdvanceSignCount(ctx, f.ID, count, e.now())
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		// A concurrent verification already moved the counter past count.
	}

	if err := e.Store.Factors().Disable(ctx, f.ID); err != nil {
		slogx.FromContext(ctx).Error("mfa: disable replayed passkey", "factor_id", f.ID, "error", err)
	}
	e.emit(ctx, audit.Event{
		Type:   audit.PasskeyReplay,
		UserID: f.UserID,
		Fields: map[string]any{"factor_id": f.ID, "stored": f.SignCount, "presented": count},
	})
	return ErrReplayDetected
}

// EncodeBase64URL and DecodeBase64URL convert WebAuthn binary fields for
// transport.
func EncodeBase64URL(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func DecodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Verifier validates a JWT and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// KeySetVerifier verifies EdDSA and ES256 tokens against a KeySet.
type KeySetVerifier struct {
	Keys     *KeySet
	Issuer   string
	Audience []string
	Leeway   time.Duration
	Now      func() time.Time
}

func NewVerifier(keys *KeySet, issuer string, audience []string) *KeySetVerifier {
	return &KeySetVerifier{Keys: keys, Issuer: issuer, Audience: audience, Leeway: 30 * time.Second}
}

func (v *KeySetVerifier) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmEdDSA, AlgorithmES256}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKID
		}
		pub, err := v.Keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
		}

		// Pin the algorithm to the key type.
		switch pub.(type) {
		case ed25519.PublicKey:
			if t.Method.Alg() != AlgorithmEdDSA {
				return nil, jwt.ErrTokenSignatureInvalid
			}
		case *ecdsa.PublicKey:
			if t.Method.Alg() != AlgorithmES256 {
				return nil, jwt.ErrTokenSignatureInvalid
			}
		}
		return pub, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	if err := claims.validateIssuer(v.Issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.validateAudience(v.Audience); err != nil {
		return Claims{}, err
	}
	if err := claims.validateTimes(now, v.Leeway); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"fmt"

	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Signing algorithms.
const (
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// Signer mints JWTs with a single private key.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
}

type keySigner struct {
	kid    string
	method jwt.SigningMethod
	key    any
	jwk    JWK
}

// NewSigner loads a PKCS8 PEM private key. The algorithm follows the key
// type: Ed25519 signs EdDSA and P-256 signs ES256.
func NewSigner(kid string, pemKey []byte) (Signer, error) {
	priv, err := cryptox.ParsePrivateKeyPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: %w", err)
	}

	switch k := priv.(type) {
	case ed25519.PrivateKey:
		return &keySigner{
			kid:    kid,
			method: jwt.SigningMethodEdDSA,
			key:    k,
			jwk:    NewEd25519JWK(kid, k.Public().(ed25519.PublicKey)),
		}, nil
	case *ecdsa.PrivateKey:
		return &keySigner{
			kid:    kid,
			method: jwt.SigningMethodES256,
			key:    k,
			jwk:    NewES256JWK(kid, &k.PublicKey),
		}, nil
	default:
		return nil, cryptox.ErrUnsupportedKey
	}
}

func (s *keySigner) Alg() string    { return s.method.Alg() }
func (s *keySigner) KID() string    { return s.kid }
func (s *keySigner) PublicJWK() JWK { return s.jwk }

func (s *keySigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

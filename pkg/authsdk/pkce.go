package authsdk

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
)

const PKCEMethodS256 = "S256"

// PKCEChallenge is a verifier and its S256 challenge.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCEChallenge creates a 256-bit verifier and its S256 challenge.
func GeneratePKCEChallenge() (*PKCEChallenge, error) {
	verifier, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}
	return &PKCEChallenge{Verifier: verifier, Challenge: S256(verifier), Method: PKCEMethodS256}, nil
}

// S256 returns BASE64URL(SHA256(verifier)) per RFC 7636.
func S256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks verifier against an S256 challenge in constant time.
// RFC 7636 limits verifiers to 43..128 characters.
func VerifyPKCE(challenge, method, verifier string) bool {
	if method != PKCEMethodS256 || len(verifier) < 43 || len(verifier) > 128 {
		return false
	}
	return cryptox.Equal(S256(verifier), challenge)
}

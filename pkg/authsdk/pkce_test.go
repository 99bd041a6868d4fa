package authsdk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratePKCEChallenge(t *testing.T) {
	t.Parallel()

	pkce, err := GeneratePKCEChallenge()
	require.NoError(t, err)
	require.Equal(t, PKCEMethodS256, pkce.Method)
	require.Len(t, pkce.Challenge, 43)
	require.True(t, VerifyPKCE(pkce.Challenge, pkce.Method, pkce.Verifier))
}

func TestVerifyPKCE(t *testing.T) {
	t.Parallel()

	// RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	require.True(t, VerifyPKCE(challenge, "S256", verifier))
	require.False(t, VerifyPKCE(challenge, "plain", verifier))
	require.False(t, VerifyPKCE(challenge, "S256", verifier[:42]))
	require.False(t, VerifyPKCE(challenge, "S256", "x"+verifier[1:]))
}

func TestOAuth2ErrorCopies(t *testing.T) {
	t.Parallel()

	e := ErrInvalidRequest.WithFields(map[string]string{"redirect_uri": "required"})
	require.Nil(t, ErrInvalidRequest.Fields)
	require.Equal(t, "required", e.Fields["redirect_uri"])
	require.Equal(t, ErrorCodeInvalidRequest, e.Code)
}

package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newClaims(now time.Time) jwtx.Claims {
	return jwtx.NewAccessClaims(jwtx.AccessParams{
		Subject:  "user-1",
		ClientID: "app1",
		Org:      "org-1",
		Scopes:   []string{"openid", "profile"},
		AMR:      []string{"pwd", "otp", "mfa"},
		SID:      "fam-1",
		TTL:      time.Minute,
		Issuer:   "https://idp.test",
		Now:      now,
	})
}

func TestSignAndVerify(t *testing.T) {
	for _, alg := range []string{jwtx.AlgorithmEdDSA, jwtx.AlgorithmES256} {
		t.Run(alg, func(t *testing.T) {
			km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Algorithm: alg, Issuer: "https://idp.test", NumKeys: 3})
			require.NoError(t, err)
			require.True(t, km.IsReady())
			require.Len(t, km.KeySet.PublicJWKS().Keys, 3)

			tok, err := km.Sign(newClaims(time.Now()))
			require.NoError(t, err)

			got, err := km.Verifier.Verify(tok)
			require.NoError(t, err)
			require.Equal(t, "user-1", got.Subject)
			require.Equal(t, "app1", got.ClientID)
			require.True(t, got.HasScope("profile"))
			require.Nil(t, got.Act)
		})
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "https://idp.test"})
	require.NoError(t, err)

	tok, err := km.Sign(newClaims(time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	_, err = km.Verifier.Verify(tok)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "https://idp.test"})
	require.NoError(t, err)
	b, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "https://idp.test"})
	require.NoError(t, err)

	tok, err := a.Sign(newClaims(time.Now()))
	require.NoError(t, err)

	_, err = b.Verifier.Verify(tok)
	require.ErrorIs(t, err, jwtx.ErrUnknownKID)
}

func TestVerifyIssuerAndAudience(t *testing.T) {
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "https://idp.test"})
	require.NoError(t, err)
	tok, err := km.Sign(newClaims(time.Now()))
	require.NoError(t, err)

	wrongIss := jwtx.NewVerifier(km.KeySet, "https://other.test", nil)
	_, err = wrongIss.Verify(tok)
	require.ErrorIs(t, err, jwtx.ErrIssuer)

	wrongAud := jwtx.NewVerifier(km.KeySet, "https://idp.test", []string{"app2"})
	_, err = wrongAud.Verify(tok)
	require.ErrorIs(t, err, jwtx.ErrAudience)
}

func TestActorClaim(t *testing.T) {
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "iss"})
	require.NoError(t, err)

	c := jwtx.NewAccessClaims(jwtx.AccessParams{Subject: "target", ClientID: "c", Actor: "admin", Issuer: "iss", Now: time.Now()})
	tok, err := km.Sign(c)
	require.NoError(t, err)

	got, err := km.Verifier.Verify(tok)
	require.NoError(t, err)
	require.NotNil(t, got.Act)
	require.Equal(t, "admin", got.Act.Subject)
}

func TestLoadPEMKeys(t *testing.T) {
	pemKey, err := cryptox.GenerateES256Key()
	require.NoError(t, err)

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "iss", PEMKeys: map[string][]byte{"k1": pemKey}})
	require.NoError(t, err)
	require.Equal(t, "k1", km.GetSigner().KID())
	require.Equal(t, jwtx.AlgorithmES256, km.GetSigner().Alg())

	jwk := km.KeySet.PublicJWKS().Keys[0]
	require.Equal(t, "EC", jwk.Kty)
	require.Equal(t, "P-256", jwk.Crv)
}

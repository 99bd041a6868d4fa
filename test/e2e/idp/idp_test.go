//go:build e2e

package idp_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
)

func TestIdentityProvider(t *testing.T) {
	redisURL := startRedis(t)

	t.Run("authorization code with rotation and reuse detection", func(t *testing.T) {
		c := newClient(t, startTollgate(t, redisURL))

		pkce, step := c.authorize("dana", "openid profile offline_access")
		require.Equal(t, authsdk.StepConsent, step.Step)
		tok := c.finish(pkce, step)
		require.NotEmpty(t, tok.RefreshToken)

		resp := c.refresh(tok.RefreshToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		rotated := decode[authsdk.TokenResponse](t, resp)
		require.NotEqual(t, tok.RefreshToken, rotated.RefreshToken)

		// The superseded token is replayed: the whole family dies.
		resp = c.refresh(tok.RefreshToken)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, authsdk.ErrorCodeInvalidGrant, decode[authsdk.OAuth2Error](t, resp).Code)

		resp = c.refresh(rotated.RefreshToken)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		// Consent is remembered for the next sign-in.
		pkce, step = c.authorize("dana", "openid profile")
		require.Equal(t, authsdk.StepRedirect, step.Step)
		c.finish(pkce, step)
	})

	t.Run("totp enrollment gates later sign-ins", func(t *testing.T) {
		c := newClient(t, startTollgate(t, redisURL))

		pkce, step := c.authorize("eli", "openid mfa:manage")
		tok := c.finish(pkce, step)

		resp := c.postJSON("/v1/mfa/totp/enroll", tok.AccessToken, struct{}{})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		enr := decode[authsdk.MFAEnrollResponse](t, resp)
		require.NotEmpty(t, enr.Secret)

		now := time.Now()
		code, err := totp.GenerateCode(enr.Secret, now.Add(-30*time.Second))
		require.NoError(t, err)
		resp = c.postJSON("/v1/mfa/totp/verify", tok.AccessToken, authsdk.MFARequest{Code: code})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, decode[authsdk.MFAEnrollResponse](t, resp).RecoveryCodes, 10)

		pkce, step = c.authorize("eli", "openid")
		require.Equal(t, authsdk.StepMFA, step.Step)
		require.Equal(t, "totp", step.Factor)

		code, err = totp.GenerateCode(enr.Secret, now.Add(30*time.Second))
		require.NoError(t, err)
		resp = c.postJSON("/authorize/mfa", "", authsdk.MFARequest{Session: step.Session, Factor: "totp", Code: code})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		c.finish(pkce, decode[authsdk.StepResponse](t, resp))
	})

	t.Run("repeated failures lock the account", func(t *testing.T) {
		c := newClient(t, startTollgate(t, redisURL))

		signIn := func(pw string) *http.Response {
			pkce, err := authsdk.GeneratePKCEChallenge()
			require.NoError(t, err)
			q := url.Values{
				"response_type":         {"code"},
				"client_id":             {webClient},
				"redirect_uri":          {webCallback},
				"scope":                 {"openid"},
				"code_challenge":        {pkce.Challenge},
				"code_challenge_method": {pkce.Method},
			}
			step := decode[authsdk.StepResponse](t, c.get("/authorize?"+q.Encode(), ""))
			return c.postJSON("/authorize/credentials", "", authsdk.CredentialsRequest{
				Session: step.Session, Identifier: "dana", Password: pw,
			})
		}

		for range 5 {
			require.Equal(t, http.StatusUnauthorized, signIn("wrong").StatusCode)
		}
		resp := signIn(password)
		require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		require.Equal(t, authsdk.ErrorCodeAccountLocked, decode[authsdk.OAuth2Error](t, resp).Code)
	})

	t.Run("confidential client and revocation", func(t *testing.T) {
		c := newClient(t, startTollgate(t, redisURL))

		resp := c.postForm("/token", url.Values{
			"grant_type":    {authsdk.GrantTypeClientCredentials},
			"client_id":     {"reporter"},
			"client_secret": {"reporter-secret"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		tok := decode[authsdk.TokenResponse](t, resp)
		require.Equal(t, "reports:read", tok.Scope)
		require.Empty(t, tok.RefreshToken)

		pkce, step := c.authorize("eli", "openid offline_access")
		user := c.finish(pkce, step)

		resp = c.postForm("/revoke", url.Values{"client_id": {webClient}, "token": {user.RefreshToken}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = c.refresh(user.RefreshToken)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		// Unknown tokens revoke quietly.
		resp = c.postForm("/revoke", url.Values{"client_id": {webClient}, "token": {"not-a-token"}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("health and discovery", func(t *testing.T) {
		c := newClient(t, startTollgate(t, redisURL))

		resp := c.get("/readyz", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "ok", decode[authsdk.HealthResponse](t, resp).Checks["ephemeral"])

		resp = c.get("/.well-known/jwks.json", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = c.get("/saml/metadata", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "samlmetadata+xml")
	})
}

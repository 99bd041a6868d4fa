package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/ephemeral"
	idphttp "github.com/aussiebroadwan/tollgate/internal/idp/http"
	"github.com/aussiebroadwan/tollgate/internal/idp/mail"
	"github.com/aussiebroadwan/tollgate/internal/idp/metrics"
	"github.com/aussiebroadwan/tollgate/internal/idp/mfa"
	"github.com/aussiebroadwan/tollgate/internal/idp/saml"
	"github.com/aussiebroadwan/tollgate/internal/idp/service"
	"github.com/aussiebroadwan/tollgate/internal/idp/store/drivers/sqlite"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	issuer    = "https://idp.test"
	password  = "correct horse battery staple"
	app1      = "app1"
	app1CB    = "https://app1.test/callback"
	svcSecret = "svc-secret"
)

type env struct {
	srv    *httptest.Server
	router *idphttp.Router
	store  *sqlite.Store
	keys   *jwtx.KeyManager
	outbox *mail.Outbox
	events *audit.Recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "idp.db")))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	mr := miniredis.RunT(t)
	eph := ephemeral.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	t.Cleanup(func() { _ = eph.Close() })

	keys, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: issuer, NumKeys: 1})
	require.NoError(t, err)
	spKeys, err := saml.GenerateKeyPair("idp.test", time.Now())
	require.NoError(t, err)

	e := &env{store: s, keys: keys, outbox: &mail.Outbox{}, events: &audit.Recorder{}}
	hasher := cryptox.NewHasher("test-pepper")
	seed(t, ctx, s, hasher)

	engine := &mfa.Engine{Store: s, OTP: eph, Mailer: e.outbox, Audit: e.events, RPID: "idp.test", Origins: []string{issuer}}
	bridge := &saml.Bridge{
		Store:    s,
		Requests: eph,
		Audit:    e.events,
		EntityID: issuer + "/saml/metadata",
		ACSURL:   issuer + "/saml/acs",
		Keys:     spKeys,
	}
	m := metrics.New()

	r := idphttp.NewRouter(keys.KeySet, keys.Verifier, "test", s, eph, m, slog.New(slog.DiscardHandler))
	r.FlowService = &service.FlowService{Store: s, Ephemeral: eph, MFA: engine, SAML: bridge, Hasher: hasher, Audit: e.events, Metrics: m}
	r.TokenService = &service.TokenService{Store: s, Ephemeral: eph, Keys: keys, Hasher: hasher, Audit: e.events, Metrics: m, Issuer: issuer}
	r.AccountService = &service.AccountService{Store: s, Ephemeral: eph, Audit: e.events}
	r.Factors = &mfa.Manager{Engine: engine, Issuer: "Tollgate"}
	r.SAML = bridge
	r.Limits = httpx.Limits{
		Strict:   httpx.RateLimit{Requests: 1000, Window: time.Minute, Burst: 1000},
		Moderate: httpx.RateLimit{Requests: 1000, Window: time.Minute, Burst: 1000},
		Public:   httpx.RateLimit{Requests: 1000, Window: time.Minute, Burst: 1000},
	}
	r.ApplyRoutes()

	e.router = r
	e.srv = httptest.NewServer(r)
	t.Cleanup(e.srv.Close)
	return e
}

func seed(t *testing.T, ctx context.Context, s *sqlite.Store, hasher *cryptox.Hasher) {
	t.Helper()
	for _, sc := range []domain.Scope{
		{Name: domain.ScopeOpenID, Type: domain.ClientInteractive},
		{Name: domain.ScopeProfile, Type: domain.ClientInteractive},
		{Name: domain.ScopeEmail, Type: domain.ClientInteractive},
		{Name: domain.ScopeOfflineAccess, Type: domain.ClientInteractive},
		{Name: domain.ScopeMFAManage, Type: domain.ClientInteractive},
		{Name: domain.ScopeAccountLink, Type: domain.ClientInteractive},
		{Name: domain.ScopeImpersonate, Type: domain.ClientInteractive},
		{Name: "api:read", Type: domain.ClientConfidential},
	} {
		require.NoError(t, s.Scopes().Upsert(ctx, sc))
	}
	require.NoError(t, s.Roles().Create(ctx, domain.Role{ID: "role-support", Name: "support", Impersonator: true}))

	svcHash, err := hasher.Hash(svcSecret)
	require.NoError(t, err)
	for _, c := range []domain.Client{
		{
			ID: app1, Name: "App One", Type: domain.ClientInteractive, Enabled: true,
			RedirectURIs:           []string{app1CB},
			PostLogoutRedirectURIs: []string{"https://app1.test/bye"},
			Scopes: []string{
				"openid", "profile", "email", "offline_access",
				domain.ScopeMFAManage, domain.ScopeAccountLink, domain.ScopeImpersonate,
			},
		},
		{
			ID: "svc", Name: "Service", Type: domain.ClientConfidential, Enabled: true, SecretHash: svcHash,
			RedirectURIs: []string{"https://svc.test/cb"},
			Scopes:       []string{"openid", "api:read"},
		},
	} {
		require.NoError(t, s.Clients().Create(ctx, c))
	}

	pw, err := hasher.Hash(password)
	require.NoError(t, err)
	for _, u := range []domain.User{
		{ID: "user-alice", Username: "alice", Email: "alice@example.test", EmailVerified: true, PasswordHash: pw},
		{ID: "user-bob", Username: "bob", Email: "bob@example.test", EmailVerified: true, PasswordHash: pw},
		{ID: "user-carol", Username: "carol", Email: "carol@example.test", EmailVerified: true, PasswordHash: pw, RoleIDs: []string{"role-support"}},
	} {
		require.NoError(t, s.Users().Create(ctx, u))
	}
}

// client does not follow redirects so tests can inspect them.
func (e *env) client() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func (e *env) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *env) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	require.NoError(t, err)
	return e.do(t, req)
}

func (e *env) postJSON(t *testing.T, path, bearer string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, strings.NewReader(string(raw)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return e.do(t, req)
}

func (e *env) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func authorizeQuery(pkce *authsdk.PKCEChallenge, scope string) url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {app1},
		"redirect_uri":          {app1CB},
		"scope":                 {scope},
		"state":                 {"xyz"},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {pkce.Method},
	}
}

// signIn walks the browser flow for login and returns the token response.
func (e *env) signIn(t *testing.T, login, scope string) authsdk.TokenResponse {
	t.Helper()
	pkce, code := e.authorizeCode(t, login, scope)
	resp := e.postForm(t, "/token", url.Values{
		"grant_type":    {authsdk.GrantTypeAuthorizationCode},
		"client_id":     {app1},
		"code":          {code},
		"redirect_uri":  {app1CB},
		"code_verifier": {pkce.Verifier},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	return decode[authsdk.TokenResponse](t, resp)
}

// authorizeCode runs the browser side of the flow and returns the
// authorization code.
func (e *env) authorizeCode(t *testing.T, login, scope string) (*authsdk.PKCEChallenge, string) {
	t.Helper()
	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(t, err)

	resp := e.get(t, "/authorize?"+authorizeQuery(pkce, scope).Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	step := decode[authsdk.StepResponse](t, resp)
	require.Equal(t, authsdk.StepCredentials, step.Step)

	resp = e.postJSON(t, "/authorize/credentials", "", authsdk.CredentialsRequest{Session: step.Session, Identifier: login, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	step = decode[authsdk.StepResponse](t, resp)
	if step.Step == authsdk.StepConsent {
		resp = e.postJSON(t, "/authorize/consent", "", authsdk.ConsentRequest{Session: step.Session, Decision: "approve", Scopes: step.Scopes})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		step = decode[authsdk.StepResponse](t, resp)
	}
	require.Equal(t, authsdk.StepRedirect, step.Step)

	u, err := url.Parse(step.RedirectTo)
	require.NoError(t, err)
	require.Equal(t, "xyz", u.Query().Get("state"))
	return pkce, u.Query().Get("code")
}

func (e *env) refresh(t *testing.T, token string) *http.Response {
	t.Helper()
	return e.postForm(t, "/token", url.Values{
		"grant_type":    {authsdk.GrantTypeRefreshToken},
		"client_id":     {app1},
		"refresh_token": {token},
	})
}

func TestAuthorizationCodeFlow(t *testing.T) {
	e := newEnv(t)
	tok := e.signIn(t, "alice", "openid profile offline_access")
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, "openid profile offline_access", tok.Scope)

	claims, err := e.keys.Verifier.Verify(tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-alice", claims.Subject)

	resp := e.refresh(t, tok.RefreshToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[authsdk.TokenResponse](t, resp)

	// Replaying the rotated token revokes the family.
	resp = e.refresh(t, tok.RefreshToken)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, authsdk.ErrorCodeInvalidGrant, decode[authsdk.OAuth2Error](t, resp).Code)

	resp = e.refresh(t, rotated.RefreshToken)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.True(t, e.events.Has(audit.TokenReuseDetected))
}

func TestTokenRedirectURIMatchesExactly(t *testing.T) {
	e := newEnv(t)
	pkce, code := e.authorizeCode(t, "alice", "openid")

	resp := e.postForm(t, "/token", url.Values{
		"grant_type":    {authsdk.GrantTypeAuthorizationCode},
		"client_id":     {app1},
		"code":          {code},
		"redirect_uri":  {" " + app1CB + " "},
		"code_verifier": {pkce.Verifier},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, authsdk.ErrorCodeInvalidGrant, decode[authsdk.OAuth2Error](t, resp).Code)
}

func TestAuthorizeErrors(t *testing.T) {
	e := newEnv(t)
	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(t, err)

	t.Run("unknown client is not redirected", func(t *testing.T) {
		q := authorizeQuery(pkce, "openid")
		q.Set("client_id", "nope")
		resp := e.get(t, "/authorize?"+q.Encode())
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Empty(t, resp.Header.Get("Location"))
	})

	t.Run("unregistered redirect is not redirected", func(t *testing.T) {
		q := authorizeQuery(pkce, "openid")
		q.Set("redirect_uri", "https://evil.test/cb")
		resp := e.get(t, "/authorize?"+q.Encode())
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Empty(t, resp.Header.Get("Location"))
	})

	t.Run("bad scope is redirected with state", func(t *testing.T) {
		resp := e.get(t, "/authorize?"+authorizeQuery(pkce, "openid bogus").Encode())
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "app1.test", loc.Host)
		require.Equal(t, authsdk.ErrorCodeInvalidScope, loc.Query().Get("error"))
		require.Equal(t, "xyz", loc.Query().Get("state"))
	})
}

func TestWrongPassword(t *testing.T) {
	e := newEnv(t)
	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(t, err)
	step := decode[authsdk.StepResponse](t, e.get(t, "/authorize?"+authorizeQuery(pkce, "openid").Encode()))

	resp := e.postJSON(t, "/authorize/credentials", "", authsdk.CredentialsRequest{Session: step.Session, Identifier: "alice", Password: "nope"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, authsdk.ErrorCodeInvalidCredentials, decode[authsdk.OAuth2Error](t, resp).Code)

	resp = e.postJSON(t, "/authorize/credentials", "", map[string]string{"session": step.Session, "unexpected": "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDenyConsentRedirects(t *testing.T) {
	e := newEnv(t)
	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(t, err)
	step := decode[authsdk.StepResponse](t, e.get(t, "/authorize?"+authorizeQuery(pkce, "openid").Encode()))
	step = decode[authsdk.StepResponse](t, e.postJSON(t, "/authorize/credentials", "",
		authsdk.CredentialsRequest{Session: step.Session, Identifier: "bob", Password: password}))
	require.Equal(t, authsdk.StepConsent, step.Step)

	resp := e.postJSON(t, "/authorize/consent", "", authsdk.ConsentRequest{Session: step.Session, Decision: "deny"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decode[authsdk.OAuth2Error](t, resp)
	loc, err := url.Parse(body.RedirectTo)
	require.NoError(t, err)
	require.Equal(t, authsdk.ErrorCodeAccessDenied, loc.Query().Get("error"))
	require.Equal(t, "xyz", loc.Query().Get("state"))
}

func TestTokenEndpoint(t *testing.T) {
	e := newEnv(t)

	t.Run("client credentials with basic auth", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/token",
			strings.NewReader(url.Values{"grant_type": {authsdk.GrantTypeClientCredentials}, "scope": {"api:read"}}.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("svc", svcSecret)
		resp := e.do(t, req)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		tok := decode[authsdk.TokenResponse](t, resp)
		require.Equal(t, "api:read", tok.Scope)
		require.Empty(t, tok.RefreshToken)
	})

	t.Run("bad secret", func(t *testing.T) {
		resp := e.postForm(t, "/token", url.Values{
			"grant_type":    {authsdk.GrantTypeClientCredentials},
			"client_id":     {"svc"},
			"client_secret": {"wrong"},
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	})

	t.Run("unsupported grant", func(t *testing.T) {
		resp := e.postForm(t, "/token", url.Values{"grant_type": {"password"}, "client_id": {app1}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, authsdk.ErrorCodeUnsupportedGrantType, decode[authsdk.OAuth2Error](t, resp).Code)
	})

	t.Run("json body", func(t *testing.T) {
		resp := e.postJSON(t, "/token", "", map[string]string{"grant_type": "client_credentials"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRevokeAndLogout(t *testing.T) {
	e := newEnv(t)

	resp := e.postForm(t, "/revoke", url.Values{"client_id": {app1}, "token": {"unknown"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tok := e.signIn(t, "alice", "openid offline_access")
	resp = e.postForm(t, "/revoke", url.Values{"client_id": {app1}, "token": {tok.RefreshToken}, "mode": {"family"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, http.StatusBadRequest, e.refresh(t, tok.RefreshToken).StatusCode)

	tok = e.signIn(t, "alice", "openid offline_access")
	resp = e.postForm(t, "/logout", url.Values{
		"client_id":                {app1},
		"refresh_token":            {tok.RefreshToken},
		"post_logout_redirect_uri": {"https://app1.test/bye"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://app1.test/bye", decode[authsdk.LogoutResponse](t, resp).RedirectTo)
	require.Equal(t, http.StatusBadRequest, e.refresh(t, tok.RefreshToken).StatusCode)
}

func TestMFAManagement(t *testing.T) {
	e := newEnv(t)

	resp := e.get(t, "/v1/mfa")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	plain := e.signIn(t, "alice", "openid")
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/v1/mfa", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+plain.AccessToken)
	require.Equal(t, http.StatusForbidden, e.do(t, req).StatusCode)

	tok := e.signIn(t, "alice", "openid "+domain.ScopeMFAManage)
	resp = e.postJSON(t, "/v1/mfa/email_otp/enroll", tok.AccessToken, struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	enroll := decode[authsdk.MFAEnrollResponse](t, resp)
	require.True(t, enroll.CodeSent)

	msg, ok := e.outbox.Last("alice@example.test")
	require.True(t, ok)
	resp = e.postJSON(t, "/v1/mfa/email_otp/verify", tok.AccessToken, authsdk.MFARequest{Code: msg.Vars["code"]})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, decode[authsdk.MFAEnrollResponse](t, resp).RecoveryCodes)

	req, err = http.NewRequest(http.MethodGet, e.srv.URL+"/v1/mfa", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp = e.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[authsdk.MFAStatusResponse](t, resp)
	require.True(t, st.EmailOTP)
	require.True(t, st.Recovery)

	resp = e.postJSON(t, "/v1/mfa/email_otp/enroll", tok.AccessToken, struct{}{})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	req, err = http.NewRequest(http.MethodDelete, e.srv.URL+"/v1/mfa/email_otp", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	require.Equal(t, http.StatusNoContent, e.do(t, req).StatusCode)
}

func TestLinkAndImpersonate(t *testing.T) {
	e := newEnv(t)

	primary := e.signIn(t, "alice", "openid "+domain.ScopeAccountLink)
	secondary := e.signIn(t, "bob", "openid "+domain.ScopeAccountLink)
	resp := e.postJSON(t, "/v1/accounts/link", primary.AccessToken, authsdk.LinkRequest{SecondaryToken: secondary.AccessToken})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.postJSON(t, "/v1/accounts/link", primary.AccessToken, authsdk.LinkRequest{SecondaryToken: secondary.AccessToken})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	support := e.signIn(t, "carol", "openid "+domain.ScopeImpersonate)
	resp = e.postJSON(t, "/v1/impersonation", support.AccessToken, authsdk.ImpersonationRequest{TargetUserID: "user-alice", ClientID: app1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	grant := decode[authsdk.ImpersonationResponse](t, resp)
	require.Positive(t, grant.ExpiresIn)

	resp = e.postForm(t, "/token", url.Values{
		"grant_type": {authsdk.GrantTypeImpersonation},
		"client_id":  {app1},
		"grant":      {grant.Grant},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := decode[authsdk.TokenResponse](t, resp)
	claims, err := e.keys.Verifier.Verify(tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-alice", claims.Subject)
	require.Equal(t, "user-carol", claims.Act.Subject)

	// Alice has no impersonator role.
	resp = e.postJSON(t, "/v1/impersonation", primary.AccessToken, authsdk.ImpersonationRequest{TargetUserID: "user-carol", ClientID: app1})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSystemEndpoints(t *testing.T) {
	e := newEnv(t)

	resp := e.get(t, "/livez")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	require.Equal(t, "test", decode[authsdk.HealthResponse](t, resp).Version)

	resp = e.get(t, "/readyz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[authsdk.HealthResponse](t, resp)
	require.Equal(t, "ok", health.Checks["database"])
	require.Equal(t, "ok", health.Checks["ephemeral"])
	require.Equal(t, "ok", health.Checks["signer"])

	resp = e.get(t, "/.well-known/jwks.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[jwtx.JWKS](t, resp).Keys, 1)

	resp = e.get(t, "/saml/metadata")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), issuer+"/saml/acs")

	resp = e.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), `path="GET /livez"`)
}

func TestStrictRateLimit(t *testing.T) {
	e := newEnv(t)
	e.router.Limits.Strict = httpx.RateLimit{Requests: 2, Window: time.Minute, Burst: 2}
	r := e.router
	r.Mux = http.NewServeMux()
	r.ApplyRoutes()

	var last int
	for range 3 {
		last = e.postForm(t, "/token", url.Values{"grant_type": {"password"}, "client_id": {app1}}).StatusCode
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}

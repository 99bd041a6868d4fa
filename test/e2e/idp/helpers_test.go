//go:build e2e

package idp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/tollgate/internal/idp/app"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
)

/*
 * End-to-end tests run the fully wired application in process against a
 * real Redis started with testcontainers. Run with: go test -tags e2e ./test/e2e/...
 */

const (
	redisImage = "redis:7-alpine"

	webClient   = "web"
	webCallback = "https://web.test/callback"
	password    = "Tr0ub4dor&3"
)

const seedYAML = `
scopes:
  - {name: openid, type: interactive}
  - {name: profile, type: interactive}
  - {name: offline_access, type: interactive}
  - {name: mfa:manage, type: interactive}
  - {name: reports:read, type: confidential}
clients:
  - id: web
    name: Web
    type: interactive
    redirect_uris: [https://web.test/callback]
    post_logout_redirect_uris: [https://web.test/]
    scopes: [openid, profile, offline_access, mfa:manage]
  - id: reporter
    name: Reporter
    type: confidential
    secret: reporter-secret
    scopes: [reports:read]
users:
  - {id: user-dana, username: dana, email: dana@example.test, email_verified: true, password: "Tr0ub4dor&3"}
  - {id: user-eli, username: eli, email: eli@example.test, email_verified: true, password: "Tr0ub4dor&3"}
`

// startRedis runs a Redis container for the duration of the test.
func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        redisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

// startTollgate wires the application against a fresh database and the
// given Redis and serves it from an httptest server.
func startTollgate(t *testing.T, redisURL string) string {
	t.Helper()
	dir := t.TempDir()

	seed := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(seedYAML), 0o600))

	// Rate limits are per process; keep them out of the way.
	t.Setenv("RATELIMIT_STRICT_REQUESTS", "1000")
	t.Setenv("RATELIMIT_STRICT_BURST", "1000")
	t.Setenv("RATELIMIT_MODERATE_REQUESTS", "1000")
	t.Setenv("RATELIMIT_MODERATE_BURST", "1000")

	cfg := app.LoadConfig()
	cfg.Issuer = "http://tollgate.test"
	cfg.DatabaseFile = filepath.Join(dir, "tollgate.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.RedisURL = redisURL
	cfg.RedisPrefix = "e2e-" + strings.ToLower(strings.ReplaceAll(t.Name(), "/", "-")) + ":"
	cfg.SeedFile = seed
	cfg.LogLevel = "warn"
	cfg.NumKeys = 1

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown()
	})
	return srv.URL
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, base string) *client {
	return &client{
		t:    t,
		base: base,
		http: &http.Client{
			Timeout: 10 * time.Second,
			// Redirects are assertions, not something to follow.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (c *client) do(req *http.Request) *http.Response {
	c.t.Helper()
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (c *client) get(path, bearer string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	require.NoError(c.t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.do(req)
}

func (c *client) postJSON(path, bearer string, body any) *http.Response {
	c.t.Helper()
	b, err := json.Marshal(body)
	require.NoError(c.t, err)
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(b))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.do(req)
}

func (c *client) postForm(path string, form url.Values) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.base+path, strings.NewReader(form.Encode()))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// authorize opens a flow for the web client and signs in with login. It
// returns the PKCE challenge and the step after the credentials.
func (c *client) authorize(login, scope string) (*authsdk.PKCEChallenge, authsdk.StepResponse) {
	c.t.Helper()
	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(c.t, err)

	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {webClient},
		"redirect_uri":          {webCallback},
		"scope":                 {scope},
		"state":                 {"e2e-state"},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {pkce.Method},
	}
	resp := c.get("/authorize?"+q.Encode(), "")
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	step := decode[authsdk.StepResponse](c.t, resp)
	require.Equal(c.t, authsdk.StepCredentials, step.Step)

	resp = c.postJSON("/authorize/credentials", "", authsdk.CredentialsRequest{
		Session: step.Session, Identifier: login, Password: password,
	})
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	return pkce, decode[authsdk.StepResponse](c.t, resp)
}

// finish approves consent if asked and redeems the code.
func (c *client) finish(pkce *authsdk.PKCEChallenge, step authsdk.StepResponse) authsdk.TokenResponse {
	c.t.Helper()
	if step.Step == authsdk.StepConsent {
		resp := c.postJSON("/authorize/consent", "", authsdk.ConsentRequest{
			Session: step.Session, Decision: "approve", Scopes: step.Scopes,
		})
		require.Equal(c.t, http.StatusOK, resp.StatusCode)
		step = decode[authsdk.StepResponse](c.t, resp)
	}
	require.Equal(c.t, authsdk.StepRedirect, step.Step)

	u, err := url.Parse(step.RedirectTo)
	require.NoError(c.t, err)
	require.Equal(c.t, "e2e-state", u.Query().Get("state"))

	resp := c.postForm("/token", url.Values{
		"grant_type":    {authsdk.GrantTypeAuthorizationCode},
		"client_id":     {webClient},
		"code":          {u.Query().Get("code")},
		"redirect_uri":  {webCallback},
		"code_verifier": {pkce.Verifier},
	})
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	return decode[authsdk.TokenResponse](c.t, resp)
}

func (c *client) refresh(token string) *http.Response {
	c.t.Helper()
	return c.postForm("/token", url.Values{
		"grant_type":    {authsdk.GrantTypeRefreshToken},
		"client_id":     {webClient},
		"refresh_token": {token},
	})
}

package service_test

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/ephemeral"
	"github.com/aussiebroadwan/tollgate/internal/idp/mail"
	"github.com/aussiebroadwan/tollgate/internal/idp/metrics"
	"github.com/aussiebroadwan/tollgate/internal/idp/mfa"
	"github.com/aussiebroadwan/tollgate/internal/idp/policy"
	"github.com/aussiebroadwan/tollgate/internal/idp/saml"
	"github.com/aussiebroadwan/tollgate/internal/idp/service"
	"github.com/aussiebroadwan/tollgate/internal/idp/store/drivers/sqlite"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	issuer      = "https://idp.test"
	password    = "correct horse battery staple"
	clientIP    = "203.0.113.7"
	app1        = "app1"
	app1Return  = "https://app1.test/callback"
	svcSecret   = "svc-secret"
	samlEntity  = "https://idp.test/saml/metadata"
	samlACS     = "https://idp.test/saml/acs"
	lockTrigger = 3
)

// Seeded user ids.
const (
	alice = "user-alice"
	bob   = "user-bob"
	carol = "user-carol"
	dave  = "user-dave"
	erin  = "user-erin"
)

type fixture struct {
	flows    *service.FlowService
	tokens   *service.TokenService
	accounts *service.AccountService
	factors  *mfa.Manager

	store  *sqlite.Store
	eph    *ephemeral.Store
	mr     *miniredis.Miniredis
	keys   *jwtx.KeyManager
	outbox *mail.Outbox
	events *audit.Recorder
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
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

	f := &fixture{
		store:  s,
		eph:    eph,
		mr:     mr,
		keys:   keys,
		outbox: &mail.Outbox{},
		events: &audit.Recorder{},
		clock:  time.Now().Truncate(time.Second),
	}
	now := func() time.Time { return f.clock }
	hasher := cryptox.NewHasher("test-pepper")
	seed(t, ctx, f, hasher)

	spKeys, err := saml.GenerateKeyPair("idp.test", f.clock)
	require.NoError(t, err)
	engine := &mfa.Engine{
		Store:   s,
		OTP:     eph,
		Mailer:  f.outbox,
		Audit:   f.events,
		RPID:    "idp.test",
		Origins: []string{issuer},
		Now:     now,
	}
	f.factors = &mfa.Manager{Engine: engine, Issuer: "Tollgate"}

	m := metrics.New()
	f.flows = &service.FlowService{
		Store:     s,
		Ephemeral: eph,
		MFA:       engine,
		SAML: &saml.Bridge{
			Store:    s,
			Requests: eph,
			Audit:    f.events,
			EntityID: samlEntity,
			ACSURL:   samlACS,
			Keys:     spKeys,
			Now:      now,
		},
		Hasher:  hasher,
		Audit:   f.events,
		Metrics: m,
		Lockout: policy.LockoutPolicy{Threshold: lockTrigger, Window: 15 * time.Minute, Cooldown: 15 * time.Minute},
		Now:     now,
	}
	f.tokens = &service.TokenService{
		Store:     s,
		Ephemeral: eph,
		Keys:      keys,
		Hasher:    hasher,
		Audit:     f.events,
		Metrics:   m,
		Issuer:    issuer,
		Now:       now,
	}
	f.accounts = &service.AccountService{Store: s, Ephemeral: eph, Audit: f.events, Now: now}
	return f
}

func seed(t *testing.T, ctx context.Context, f *fixture, hasher *cryptox.Hasher) {
	t.Helper()
	s := f.store

	require.NoError(t, s.Orgs().Create(ctx, domain.Org{ID: "org-acme", Slug: "acme", Name: "Acme"}))
	require.NoError(t, s.Orgs().Create(ctx, domain.Org{ID: "org-corp", Slug: "corp", Name: "Corp", AllowPublicRegistration: true}))

	for _, sc := range []domain.Scope{
		{Name: domain.ScopeOpenID, Type: domain.ClientInteractive},
		{Name: domain.ScopeProfile, Type: domain.ClientInteractive},
		{Name: domain.ScopeEmail, Type: domain.ClientInteractive},
		{Name: domain.ScopeOfflineAccess, Type: domain.ClientInteractive},
		{Name: "admin:write", Type: domain.ClientInteractive, Restricted: true},
		{Name: "api:read", Type: domain.ClientConfidential},
	} {
		require.NoError(t, s.Scopes().Upsert(ctx, sc))
	}
	require.NoError(t, s.Roles().Create(ctx, domain.Role{ID: "role-admin", Name: "admin", Scopes: []string{"admin:write"}}))
	require.NoError(t, s.Roles().Create(ctx, domain.Role{ID: "role-support", Name: "support", Impersonator: true}))

	svcHash, err := hasher.Hash(svcSecret)
	require.NoError(t, err)
	for _, c := range []domain.Client{
		{
			ID: app1, Name: "App One", Type: domain.ClientInteractive, Enabled: true,
			RedirectURIs:           []string{app1Return},
			PostLogoutRedirectURIs: []string{"https://app1.test/bye"},
			Scopes:                 []string{"openid", "profile", "email", "offline_access", "admin:write"},
		},
		{
			ID: "secure", Name: "Secure", Type: domain.ClientInteractive, Enabled: true, RequireMFA: true,
			RedirectURIs: []string{"https://secure.test/cb"},
			Scopes:       []string{"openid", "offline_access"},
		},
		{
			ID: "svc", Name: "Service", Type: domain.ClientConfidential, Enabled: true, SecretHash: svcHash,
			RedirectURIs: []string{"https://svc.test/cb"},
			Scopes:       []string{"openid", "api:read"},
		},
		{
			ID: "off", Name: "Disabled", Type: domain.ClientInteractive,
			RedirectURIs: []string{"https://off.test/cb"},
			Scopes:       []string{"openid"},
		},
	} {
		require.NoError(t, s.Clients().Create(ctx, c))
	}

	pw, err := hasher.Hash(password)
	require.NoError(t, err)
	for _, u := range []domain.User{
		{ID: alice, Username: "alice", Email: "alice@acme.test", EmailVerified: true, PasswordHash: pw, OrgIDs: []string{"org-acme"}},
		{ID: bob, Username: "bob", Email: "bob@example.test", EmailVerified: true, PasswordHash: pw},
		{ID: carol, Username: "carol", Email: "carol@example.test", EmailVerified: true, PasswordHash: pw, RoleIDs: []string{"role-support"}},
		{ID: dave, Username: "dave", Email: "dave@example.test", EmailVerified: true, PasswordHash: pw, RoleIDs: []string{"role-admin", "role-support"}},
		{ID: erin, Username: "erin", Email: "erin@example.test", PasswordHash: pw},
	} {
		require.NoError(t, s.Users().Create(ctx, u))
	}
}

// start opens an app1 flow asking for scope.
func (f *fixture) start(t *testing.T, scope string) (service.Step, *authsdk.PKCEChallenge) {
	t.Helper()
	return f.startFor(t, app1, app1Return, scope, "")
}

func (f *fixture) startFor(t *testing.T, clientID, redirectURI, scope, org string) (service.Step, *authsdk.PKCEChallenge) {
	t.Helper()
	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(t, err)
	step, err := f.flows.StartAuthorize(context.Background(), service.AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               scope,
		State:               "xyz",
		CodeChallenge:       pkce.Challenge,
		CodeChallengeMethod: pkce.Method,
		Org:                 org,
	})
	require.NoError(t, err)
	require.Equal(t, domain.FlowCredentialCheck, step.Status)
	return step, pkce
}

// signIn runs the flow up to the first step after the password.
func (f *fixture) signIn(t *testing.T, login, scope string) (service.Step, *authsdk.PKCEChallenge) {
	t.Helper()
	step, pkce := f.start(t, scope)
	next, err := f.flows.SubmitCredentials(context.Background(), step.Session, login, password, clientIP)
	require.NoError(t, err)
	return next, pkce
}

// code signs login in to app1, approves every requested scope and returns
// the authorization code with its verifier.
func (f *fixture) code(t *testing.T, login, scope string) (string, string) {
	t.Helper()
	step, pkce := f.signIn(t, login, scope)
	if step.Status == domain.FlowConsentRequired {
		var err error
		step, err = f.flows.GrantConsent(context.Background(), step.Session, step.Scopes)
		require.NoError(t, err)
	}
	require.Equal(t, domain.FlowCodeIssued, step.Status)
	return codeFrom(t, step.RedirectTo), pkce.Verifier
}

func (f *fixture) redeem(code, verifier string) (service.TokenPair, error) {
	return f.tokens.RedeemCode(context.Background(), service.CodeRedemption{
		ClientID:     app1,
		Code:         code,
		RedirectURI:  app1Return,
		CodeVerifier: verifier,
	})
}

func (f *fixture) tokensFor(t *testing.T, login, scope string) service.TokenPair {
	t.Helper()
	pair, err := f.redeem(f.code(t, login, scope))
	require.NoError(t, err)
	return pair
}

func (f *fixture) rotate(token string, scopes ...string) (service.TokenPair, error) {
	return f.tokens.Rotate(context.Background(), service.RefreshRequest{ClientID: app1, RefreshToken: token, Scopes: scopes})
}

func (f *fixture) user(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := f.store.Users().Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

func redirectErr(t *testing.T, err error) *service.RedirectError {
	t.Helper()
	var redir *service.RedirectError
	require.ErrorAs(t, err, &redir)
	return redir
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
	f.mr.FastForward(d)
}

func codeFrom(t *testing.T, redirectTo string) string {
	t.Helper()
	u, err := url.Parse(redirectTo)
	require.NoError(t, err)
	require.Equal(t, "xyz", u.Query().Get("state"))
	code := u.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func (f *fixture) countEvents(typ audit.EventType) int {
	n := 0
	for _, e := range f.events.Events() {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// claims verifies an access token at the fixture clock.
func (f *fixture) claims(t *testing.T, token string) jwtx.Claims {
	t.Helper()
	v := jwtx.NewVerifier(f.keys.KeySet, issuer, nil)
	v.Now = func() time.Time { return f.clock }
	c, err := v.Verify(token)
	require.NoError(t, err)
	return c
}

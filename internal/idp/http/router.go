// Package http exposes the identity provider over HTTP: the authorization
// flow, the token endpoints, SAML, self-service MFA and accounts.
package http

//go:generate swag init --dir ../../.. --generalInfo internal/idp/http/router.go --output ../../../api/idp --outputTypes go,json

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/metrics"
	"github.com/aussiebroadwan/tollgate/internal/idp/mfa"
	"github.com/aussiebroadwan/tollgate/internal/idp/saml"
	"github.com/aussiebroadwan/tollgate/internal/idp/service"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"

	_ "github.com/aussiebroadwan/tollgate/api/idp" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store     store.Store
	ephemeral Pinger
	metrics   *metrics.Metrics

	FlowService    *service.FlowService
	TokenService   *service.TokenService
	AccountService *service.AccountService
	Factors        *mfa.Manager
	SAML           *saml.Bridge

	// Limits are the rate limit profiles per endpoint class.
	Limits httpx.Limits
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	// LoginURL is where the SAML ACS sends browsers that still have steps
	// to complete.
	LoginURL string
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	eph Pinger,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		ephemeral:    eph,
		metrics:      m,
		logger:       logger,
		Limits:       httpx.DefaultLimits(),
	}

	// Instrument sits innermost so it sees the pattern the mux matched.
	r.middlewares = []httpx.Middleware{
		httpx.Recover(),
		slogx.HTTPMiddleware(r.logger),
		httpx.SecurityHeaders(),
		r.metrics.Instrument,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuthorize()
	r.registerOAuth2()
	r.registerSAML()
	r.registerMFA()
	r.registerAccounts()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Tollgate Identity Provider API
//	@version		0.1.0
//	@description	Authorization code flow with PKCE, consent and multi-factor authentication, refresh token rotation with reuse detection, SAML sign-in, account linking and impersonation.
//	@description
//	@description				Access tokens are EdDSA or ES256 JWTs and can be verified with the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/tollgate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) byIP(rl httpx.RateLimit) httpx.Middleware {
	return httpx.Limit(rl, httpx.ByIP(r.TrustProxy))
}

func (r *Router) bySubject(rl httpx.RateLimit) httpx.Middleware {
	return httpx.Limit(rl, httpx.BySubject(r.TrustProxy))
}

// secured requires a bearer token carrying scope and limits per subject.
func (r *Router) secured(h http.HandlerFunc, scope string) http.Handler {
	return httpx.Chain(h,
		httpx.Authn(r.verifier),
		httpx.RequireScope(scope),
		r.bySubject(r.Limits.Moderate),
	)
}

func (r *Router) registerAuthorize() {
	h := &AuthorizeHandler{Flows: r.FlowService, TrustProxy: r.TrustProxy}

	// GET /authorize only opens a session
	r.Mux.Handle("GET /authorize",
		httpx.Chain(http.HandlerFunc(h.HandleGet), r.byIP(r.Limits.Moderate)))

	// Credential and factor checks are the brute force surface
	r.Mux.Handle("POST /authorize/credentials",
		httpx.Chain(http.HandlerFunc(h.HandleCredentials), r.byIP(r.Limits.Strict)))
	r.Mux.Handle("POST /authorize/mfa",
		httpx.Chain(http.HandlerFunc(h.HandleMFA), r.byIP(r.Limits.Strict)))

	// Selecting email_otp sends mail
	r.Mux.Handle("POST /authorize/mfa/select",
		httpx.Chain(http.HandlerFunc(h.HandleSelectFactor), r.byIP(r.Limits.Strict)))
	r.Mux.Handle("POST /authorize/consent",
		httpx.Chain(http.HandlerFunc(h.HandleConsent), r.byIP(r.Limits.Moderate)))
}

func (r *Router) registerOAuth2() {
	// POST /token - strict, keyed by IP and client so one client cannot
	// starve the others behind a shared address
	r.Mux.Handle("POST /token",
		httpx.Chain(&TokenHandler{Tokens: r.TokenService},
			httpx.Limit(r.Limits.Strict, httpx.ByIPAndField(r.TrustProxy, "client_id")),
		),
	)
	r.Mux.Handle("POST /revoke",
		httpx.Chain(&RevokeHandler{Tokens: r.TokenService}, r.byIP(r.Limits.Moderate)))
	r.Mux.Handle("POST /logout",
		httpx.Chain(&LogoutHandler{Tokens: r.TokenService}, r.byIP(r.Limits.Moderate)))
}

func (r *Router) registerSAML() {
	if r.SAML == nil {
		return
	}
	h := &SAMLHandler{Flows: r.FlowService, Bridge: r.SAML, TrustProxy: r.TrustProxy, LoginURL: r.LoginURL}

	r.Mux.Handle("GET /saml/metadata",
		httpx.Chain(http.HandlerFunc(h.HandleMetadata), r.byIP(r.Limits.Public)))
	r.Mux.Handle("GET /saml/{idp}/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin), r.byIP(r.Limits.Moderate)))
	r.Mux.Handle("POST /saml/acs",
		httpx.Chain(http.HandlerFunc(h.HandleACS), r.byIP(r.Limits.Strict)))
}

func (r *Router) registerMFA() {
	h := &MFAHandler{Factors: r.Factors, Store: r.store}

	r.Mux.Handle("GET /v1/mfa", r.secured(h.HandleStatus, domain.ScopeMFAManage))
	r.Mux.Handle("POST /v1/mfa/{kind}/enroll", r.secured(h.HandleEnroll, domain.ScopeMFAManage))
	r.Mux.Handle("POST /v1/mfa/{kind}/verify", r.secured(h.HandleVerify, domain.ScopeMFAManage))
	r.Mux.Handle("DELETE /v1/mfa/{kind}", r.secured(h.HandleRemove, domain.ScopeMFAManage))
}

func (r *Router) registerAccounts() {
	h := &AccountHandler{Accounts: r.AccountService, Store: r.store, Verifier: r.verifier}

	r.Mux.Handle("POST /v1/accounts/link", r.secured(h.HandleLink, domain.ScopeAccountLink))
	r.Mux.Handle("DELETE /v1/accounts/{id}/link", r.secured(h.HandleUnlink, domain.ScopeAccountLink))
	r.Mux.Handle("POST /v1/impersonation", r.secured(h.HandleImpersonate, domain.ScopeImpersonate))
}

func (r *Router) registerSystem() {
	deps := map[string]Pinger{"database": r.store}
	if r.ephemeral != nil {
		deps["ephemeral"] = r.ephemeral
	}

	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys), r.byIP(r.Limits.Public)))
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, deps, r.keys))
	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}

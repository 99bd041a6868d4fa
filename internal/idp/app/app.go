package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/ephemeral"
	httpapi "github.com/aussiebroadwan/tollgate/internal/idp/http"
	"github.com/aussiebroadwan/tollgate/internal/idp/mail"
	"github.com/aussiebroadwan/tollgate/internal/idp/metrics"
	"github.com/aussiebroadwan/tollgate/internal/idp/mfa"
	"github.com/aussiebroadwan/tollgate/internal/idp/policy"
	"github.com/aussiebroadwan/tollgate/internal/idp/saml"
	"github.com/aussiebroadwan/tollgate/internal/idp/service"
	"github.com/aussiebroadwan/tollgate/internal/idp/store/drivers/sqlite"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// BuildVersion is overridden at build time with
// -ldflags "-X github.com/aussiebroadwan/tollgate/internal/idp/app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Application encapsulates the identity provider with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db        *sqlite.Store
	ephemeral *ephemeral.Store
	keys      *jwtx.KeyManager
	samlKeys  *saml.KeyPair
	hasher    *cryptox.Hasher
	metrics   *metrics.Metrics
	audit     audit.Sink

	// Services
	flowService         *service.FlowService
	tokenService        *service.TokenService
	accountService      *service.AccountService
	factors             *mfa.Manager
	bridge              *saml.Bridge
	housekeepingService *service.HousekeepingService
	housekeepingRunning bool

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "tollgate",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// New creates a new Application instance with all dependencies initialized
func New(ctx context.Context, cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg:    cfg,
		logger: NewLogger(cfg),
	}

	db, err := OpenDatabase(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.db = db

	if err := app.initDependencies(ctx); err != nil {
		app.closeStores()
		return nil, err
	}
	app.initServices()

	if cfg.SeedFile != "" {
		if _, err := app.applySeed(ctx, cfg.SeedFile); err != nil {
			app.closeStores()
			return nil, err
		}
	}

	app.initHTTP()
	return app, nil
}

// Handler returns the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Logger returns the process logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()
	app.housekeepingRunning = true

	app.logger.Info("tollgate starting", "port", app.cfg.Port, "issuer", app.cfg.Issuer, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down tollgate...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeepingRunning {
		app.housekeepingService.Stop()
		app.housekeepingRunning = false
	}

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("tollgate stopped")
	return nil
}

func (app *Application) closeStores() error {
	var errs []error
	if app.ephemeral != nil {
		if err := app.ephemeral.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenDatabase opens the SQLite store and applies migrations.
func OpenDatabase(cfg Config, logger *slog.Logger) (*sqlite.Store, error) {
	db, err := sqlite.NewStore(sqlite.DSN(cfg.DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	logger.Info("database migrations applied successfully", "file", cfg.DatabaseFile)
	return db, nil
}

// SeedDatabase applies the seed file at path against the configured
// database.
func SeedDatabase(ctx context.Context, cfg Config, path string, logger *slog.Logger) (SeedResult, error) {
	db, err := OpenDatabase(cfg, logger)
	if err != nil {
		return SeedResult{}, err
	}
	defer func() { _ = db.Close() }()

	hasher, err := newHasher(cfg)
	if err != nil {
		return SeedResult{}, err
	}
	seed, err := LoadSeedFile(path)
	if err != nil {
		return SeedResult{}, err
	}
	res, err := seed.Apply(ctx, db, hasher, logger)
	if err != nil {
		return SeedResult{}, err
	}
	logger.Info("seed applied", "file", path, "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

func newHasher(cfg Config) (*cryptox.Hasher, error) {
	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	return cryptox.NewHasher(pepper), nil
}

func (app *Application) applySeed(ctx context.Context, path string) (SeedResult, error) {
	seed, err := LoadSeedFile(path)
	if err != nil {
		return SeedResult{}, err
	}
	res, err := seed.Apply(ctx, app.db, app.hasher, app.logger)
	if err != nil {
		return SeedResult{}, err
	}
	app.logger.Info("seed applied", "file", path, "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

// initDependencies connects Redis and loads keys and the pepper.
func (app *Application) initDependencies(ctx context.Context) error {
	hasher, err := newHasher(app.cfg)
	if err != nil {
		return err
	}
	app.hasher = hasher

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	eph, err := ephemeral.Dial(dialCtx, app.cfg.RedisURL, app.cfg.RedisPrefix)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.ephemeral = eph
	app.logger.Info("ephemeral store connected")

	if app.keys, err = InitSigningKeys(app.cfg, app.logger); err != nil {
		return err
	}
	if app.samlKeys, err = InitSAMLKeys(app.cfg, app.logger); err != nil {
		return err
	}

	app.metrics = metrics.New()
	app.audit = audit.Multi{
		audit.Slog{},
		audit.Store{Store: app.db},
		audit.Metrics{Metrics: app.metrics},
	}
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	engine := &mfa.Engine{
		Store:   app.db,
		OTP:     app.ephemeral,
		Mailer:  mail.LogSender{Verbose: app.cfg.MailVerbose},
		Audit:   app.audit,
		RPID:    app.cfg.RelyingPartyID(),
		Origins: webAuthnOrigins(app.cfg),
		OTPTTL:  app.cfg.OTPTTL,
	}
	app.factors = &mfa.Manager{Engine: engine, Issuer: app.cfg.TOTPIssuer}

	app.bridge = &saml.Bridge{
		Store:    app.db,
		Requests: app.ephemeral,
		Audit:    app.audit,
		EntityID: app.cfg.Issuer + "/saml/metadata",
		ACSURL:   app.cfg.Issuer + "/saml/acs",
		Keys:     app.samlKeys,
	}

	app.flowService = &service.FlowService{
		Store:     app.db,
		Ephemeral: app.ephemeral,
		MFA:       engine,
		SAML:      app.bridge,
		Hasher:    app.hasher,
		Audit:     app.audit,
		Metrics:   app.metrics,
		Lockout: policy.LockoutPolicy{
			Threshold: app.cfg.LockoutThreshold,
			Window:    app.cfg.LockoutWindow,
			Cooldown:  app.cfg.LockoutCooldown,
		},
		FlowTTL: app.cfg.FlowTTL,
		CodeTTL: app.cfg.CodeTTL,
	}

	app.tokenService = &service.TokenService{
		Store:      app.db,
		Ephemeral:  app.ephemeral,
		Keys:       app.keys,
		Hasher:     app.hasher,
		Audit:      app.audit,
		Metrics:    app.metrics,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}

	app.accountService = &service.AccountService{
		Store:     app.db,
		Ephemeral: app.ephemeral,
		Audit:     app.audit,
		GrantTTL:  app.cfg.ImpersonationTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys.KeySet,
		app.keys.Verifier,
		BuildVersion,
		app.db,
		app.ephemeral,
		app.metrics,
		app.logger,
	)

	// Wire services to router
	router.FlowService = app.flowService
	router.TokenService = app.tokenService
	router.AccountService = app.accountService
	router.Factors = app.factors
	router.SAML = app.bridge
	router.Limits = httpx.LimitsFromEnv()
	router.TrustProxy = app.cfg.TrustProxy
	router.LoginURL = app.cfg.LoginURL
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// webAuthnOrigins accepts assertions made on the issuer and, when a
// separate login UI is configured, on that UI's origin.
func webAuthnOrigins(cfg Config) []string {
	origins := []string{cfg.Issuer}
	if cfg.LoginURL == "" {
		return origins
	}
	u, err := url.Parse(cfg.LoginURL)
	if err != nil {
		return origins
	}
	if o := u.Scheme + "://" + u.Host; o != cfg.Issuer {
		origins = append(origins, o)
	}
	return origins
}

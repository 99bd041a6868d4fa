package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
)

type Config struct {
	Issuer    string // Required: public base URL, also the token issuer
	Algorithm string // Optional: JWT signing algorithm (EdDSA, ES256) (default: EdDSA)
	NumKeys   int    // Optional: number of generated signing keys (default: 2, max: 10)
	KeyDir    string // Optional: directory of <kid>.pem signing keys; empty generates keys on startup

	DatabaseFile string // Optional: path to SQLite database file (default: ./tollgate.db)
	PepperFile   string // Optional: path to the password pepper, created when missing (default: ./pepper)
	RedisURL     string // Optional: ephemeral store URL (default: redis://localhost:6379/0)
	RedisPrefix  string // Optional: key prefix in Redis (default: tollgate:)
	SeedFile     string // Optional: YAML seed applied by `tollgate seed` and on serve when set

	SAMLCertFile string // Optional: PEM certificate signing AuthnRequests; generated when empty
	SAMLKeyFile  string // Optional: PEM RSA key matching SAMLCertFile
	LoginURL     string // Optional: UI that continues flows after SAML sign-in
	RPID         string // Optional: WebAuthn relying party id (default: issuer host)
	TOTPIssuer   string // Optional: name shown by authenticator apps (default: Tollgate)
	TrustProxy   bool   // Optional: take client addresses from X-Forwarded-For (default: false)
	MailVerbose  bool   // Optional: log mail variables, one-time codes included (default: false)

	AccessTTL        time.Duration // Optional: access token lifetime (default: 15m)
	RefreshTTL       time.Duration // Optional: sliding refresh token lifetime (default: 720h)
	FlowTTL          time.Duration // Optional: authorization flow lifetime (default: 15m)
	CodeTTL          time.Duration // Optional: authorization code lifetime (default: 5m)
	OTPTTL           time.Duration // Optional: email code lifetime (default: 10m)
	ImpersonationTTL time.Duration // Optional: impersonation grant lifetime (default: 5m)

	LockoutThreshold int           // Optional: failures before lockout (default: 5)
	LockoutWindow    time.Duration // Optional: window failures are counted in (default: 15m)
	LockoutCooldown  time.Duration // Optional: how long a lockout lasts (default: 15m)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:    getEnvOrDefault("TOLLGATE_ISSUER", "http://localhost:8080"),
		Algorithm: getEnvOrDefault("TOLLGATE_ALGORITHM", jwtx.AlgorithmEdDSA),
		NumKeys:   getEnvIntOrDefault("TOLLGATE_NUM_KEYS", 0),
		KeyDir:    os.Getenv("TOLLGATE_KEY_DIR"),

		DatabaseFile: getEnvOrDefault("TOLLGATE_DATABASE_FILE", "tollgate.db"),
		PepperFile:   getEnvOrDefault("TOLLGATE_PEPPER_FILE", "pepper"),
		RedisURL:     getEnvOrDefault("TOLLGATE_REDIS_URL", "redis://localhost:6379/0"),
		RedisPrefix:  os.Getenv("TOLLGATE_REDIS_PREFIX"),
		SeedFile:     os.Getenv("TOLLGATE_SEED_FILE"),

		SAMLCertFile: os.Getenv("TOLLGATE_SAML_CERT_FILE"),
		SAMLKeyFile:  os.Getenv("TOLLGATE_SAML_KEY_FILE"),
		LoginURL:     os.Getenv("TOLLGATE_LOGIN_URL"),
		RPID:         os.Getenv("TOLLGATE_RP_ID"),
		TOTPIssuer:   getEnvOrDefault("TOLLGATE_TOTP_ISSUER", "Tollgate"),
		TrustProxy:   getEnvBoolOrDefault("TOLLGATE_TRUST_PROXY", false),
		MailVerbose:  getEnvBoolOrDefault("TOLLGATE_MAIL_VERBOSE", false),

		AccessTTL:        getEnvDurationOrDefault("TOLLGATE_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:       getEnvDurationOrDefault("TOLLGATE_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		FlowTTL:          getEnvDurationOrDefault("TOLLGATE_FLOW_TTL", 15*time.Minute),
		CodeTTL:          getEnvDurationOrDefault("TOLLGATE_CODE_TTL", 5*time.Minute),
		OTPTTL:           getEnvDurationOrDefault("TOLLGATE_OTP_TTL", 10*time.Minute),
		ImpersonationTTL: getEnvDurationOrDefault("TOLLGATE_IMPERSONATION_TTL", 5*time.Minute),

		LockoutThreshold: getEnvIntOrDefault("TOLLGATE_LOCKOUT_THRESHOLD", 5),
		LockoutWindow:    getEnvDurationOrDefault("TOLLGATE_LOCKOUT_WINDOW", 15*time.Minute),
		LockoutCooldown:  getEnvDurationOrDefault("TOLLGATE_LOCKOUT_COOLDOWN", 15*time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	cfg.Issuer = strings.TrimRight(cfg.Issuer, "/")
	return cfg
}

// Validate reports every problem with cfg at once.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Issuer)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		errs = append(errs, fmt.Errorf("TOLLGATE_ISSUER must be an absolute http(s) URL, got %q", c.Issuer))
	} else if u.Scheme == "http" && c.Env == "prod" {
		errs = append(errs, errors.New("TOLLGATE_ISSUER must use https in prod"))
	}

	switch c.Algorithm {
	case jwtx.AlgorithmEdDSA, jwtx.AlgorithmES256:
	default:
		errs = append(errs, fmt.Errorf("TOLLGATE_ALGORITHM %q is not supported", c.Algorithm))
	}
	if c.NumKeys < 0 || c.NumKeys > 10 {
		errs = append(errs, fmt.Errorf("TOLLGATE_NUM_KEYS must be between 0 and 10, got %d", c.NumKeys))
	}

	if (c.SAMLCertFile == "") != (c.SAMLKeyFile == "") {
		errs = append(errs, errors.New("TOLLGATE_SAML_CERT_FILE and TOLLGATE_SAML_KEY_FILE must be set together"))
	}
	if c.LoginURL != "" {
		if u, err := url.Parse(c.LoginURL); err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("TOLLGATE_LOGIN_URL must be absolute, got %q", c.LoginURL))
		}
	}

	for name, d := range map[string]time.Duration{
		"TOLLGATE_ACCESS_TTL":        c.AccessTTL,
		"TOLLGATE_REFRESH_TTL":       c.RefreshTTL,
		"TOLLGATE_FLOW_TTL":          c.FlowTTL,
		"TOLLGATE_CODE_TTL":          c.CodeTTL,
		"TOLLGATE_OTP_TTL":           c.OTPTTL,
		"TOLLGATE_IMPERSONATION_TTL": c.ImpersonationTTL,
		"TOLLGATE_LOCKOUT_WINDOW":    c.LockoutWindow,
		"TOLLGATE_LOCKOUT_COOLDOWN":  c.LockoutCooldown,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.RefreshTTL > 0 && c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, errors.New("TOLLGATE_ACCESS_TTL must be shorter than TOLLGATE_REFRESH_TTL"))
	}
	if c.LockoutThreshold < 1 {
		errs = append(errs, errors.New("TOLLGATE_LOCKOUT_THRESHOLD must be at least 1"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}

	return errors.Join(errs...)
}

// RelyingPartyID is the WebAuthn RP id, the issuer host unless overridden.
func (c Config) RelyingPartyID() string {
	if c.RPID != "" {
		return c.RPID
	}
	u, err := url.Parse(c.Issuer)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

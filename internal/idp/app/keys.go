package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/saml"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
)

// InitSigningKeys creates the KeyManager that signs access tokens.
//
// With TOLLGATE_KEY_DIR set every <kid>.pem file in the directory is loaded
// and tokens survive restarts. Otherwise NumKeys keys of the configured
// algorithm are generated in memory and all outstanding access tokens become
// unverifiable when the process restarts. Refresh tokens are opaque and
// unaffected either way.
//
// The audience is left empty: tokens carry the client id as audience and
// resource servers check it themselves.
func InitSigningKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		NumKeys:   cfg.NumKeys,
	}

	if cfg.KeyDir != "" {
		keys, err := readPEMDir(cfg.KeyDir)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("no *.pem keys found in %s", cfg.KeyDir)
		}
		opts.PEMKeys = keys

		km, err := jwtx.NewKeyManager(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing keys: %w", err)
		}
		logger.Info("signing keys loaded", "dir", cfg.KeyDir, "num_keys", len(keys), "issuer", cfg.Issuer)
		return km, nil
	}

	logger.Info("generating ephemeral signing keys", "algorithm", cfg.Algorithm, "num_keys", cfg.NumKeys)
	km, err := jwtx.NewKeyManager(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing keys: %w", err)
	}
	logger.Warn("access tokens issued before this start can no longer be verified")
	return km, nil
}

// readPEMDir maps each <kid>.pem in dir to its contents.
func readPEMDir(dir string) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read key dir: %w", err)
	}
	keys := make(map[string][]byte)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pem" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", e.Name(), err)
		}
		keys[strings.TrimSuffix(e.Name(), ".pem")] = b
	}
	return keys, nil
}

// InitSAMLKeys loads the key pair that signs AuthnRequests, or generates a
// self-signed one for the issuer host. A generated certificate changes on
// every start, so IdPs that pin it need the configured files.
func InitSAMLKeys(cfg Config, logger *slog.Logger) (*saml.KeyPair, error) {
	if cfg.SAMLCertFile != "" {
		certPEM, err := os.ReadFile(filepath.Clean(cfg.SAMLCertFile))
		if err != nil {
			return nil, fmt.Errorf("read saml certificate: %w", err)
		}
		keyPEM, err := os.ReadFile(filepath.Clean(cfg.SAMLKeyFile))
		if err != nil {
			return nil, fmt.Errorf("read saml key: %w", err)
		}
		kp, err := saml.LoadKeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, err
		}
		logger.Info("saml signing key loaded", "subject", kp.Cert.Subject.CommonName, "not_after", kp.Cert.NotAfter)
		return kp, nil
	}

	kp, err := saml.GenerateKeyPair(cfg.RelyingPartyID(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate saml key: %w", err)
	}
	logger.Warn("using a generated saml signing certificate", "subject", kp.Cert.Subject.CommonName)
	return kp, nil
}

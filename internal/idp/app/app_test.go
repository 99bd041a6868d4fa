package app_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tollgate/internal/idp/app"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
)

func testConfig(t *testing.T) app.Config {
	t.Helper()
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	cfg := app.LoadConfig()
	cfg.Issuer = "http://idp.test"
	cfg.DatabaseFile = filepath.Join(dir, "tollgate.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	cfg.LogFormat = "text"
	cfg.LogLevel = "error"
	cfg.NumKeys = 1
	return cfg
}

func TestApplicationServesWiredRouter(t *testing.T) {
	t.Setenv("SEED_WORKER_SECRET", "worker-secret")
	cfg := testConfig(t)
	cfg.SeedFile = writeSeed(t)

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	var health authsdk.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", health.Checks["database"])
	require.Equal(t, "ok", health.Checks["ephemeral"])
	require.Equal(t, "ok", health.Checks["signer"])

	// The seeded confidential client can obtain a token.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/token",
		strings.NewReader("grant_type=client_credentials&scope=api:read"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("worker", "worker-secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var tok authsdk.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, tok.AccessToken)
	require.Empty(t, tok.RefreshToken)

	require.NoError(t, a.Shutdown())
}

func TestApplicationPepperIsStable(t *testing.T) {
	cfg := testConfig(t)

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.Shutdown())

	first, err := os.ReadFile(cfg.PepperFile)
	require.NoError(t, err)

	a, err = app.New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.Shutdown())

	second, err := os.ReadFile(cfg.PepperFile)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestApplicationRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Algorithm = "HS256"

	_, err := app.New(context.Background(), cfg)
	require.ErrorContains(t, err, "invalid configuration")
}

func TestApplicationFailsWithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	_, err := app.New(context.Background(), cfg)
	require.ErrorContains(t, err, "redis")
}

func TestSeedDatabase(t *testing.T) {
	t.Setenv("SEED_WORKER_SECRET", "worker-secret")
	cfg := testConfig(t)

	res, err := app.SeedDatabase(context.Background(), cfg, writeSeed(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.Equal(t, 11, res.Created)
}

func TestInitSigningKeysFromDir(t *testing.T) {
	dir := t.TempDir()
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kid-1.pem"), pemKey, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o600))

	cfg := app.LoadConfig()
	cfg.KeyDir = dir

	km, err := app.InitSigningKeys(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	jwks := km.KeySet.PublicJWKS()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "kid-1", jwks.Keys[0].Kid)
	require.Equal(t, jwtx.AlgorithmEdDSA, jwks.Keys[0].Alg)
}

func TestInitSigningKeysEmptyDir(t *testing.T) {
	cfg := app.LoadConfig()
	cfg.KeyDir = t.TempDir()

	_, err := app.InitSigningKeys(cfg, slog.New(slog.DiscardHandler))
	require.ErrorContains(t, err, "no *.pem keys")
}

func TestInitSAMLKeysGenerated(t *testing.T) {
	cfg := app.LoadConfig()
	cfg.Issuer = "https://id.example.test"

	kp, err := app.InitSAMLKeys(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.Equal(t, "id.example.test", kp.Cert.Subject.CommonName)
}

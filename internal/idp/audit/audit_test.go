package audit_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/metrics"
	"github.com/aussiebroadwan/tollgate/internal/idp/store/drivers/sqlite"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestMultiFansOut(t *testing.T) {
	var a, b audit.Recorder
	audit.Multi{&a, &b}.Emit(context.Background(), audit.Event{Type: audit.TokenIssued, UserID: "u1"})

	require.True(t, a.Has(audit.TokenIssued))
	require.True(t, b.Has(audit.TokenIssued))
	require.False(t, a.Events()[0].At.IsZero())
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := slogx.WithContext(context.Background(), logger)

	audit.Slog{}.Emit(ctx, audit.Event{Type: audit.TokenReuseDetected, UserID: "u1", Fields: map[string]any{"family_id": "f"}})
	require.Contains(t, buf.String(), `"level":"WARN"`)
	require.Contains(t, buf.String(), `"event":"token_reuse_detected"`)
	require.Contains(t, buf.String(), `"family_id":"f"`)

	buf.Reset()
	audit.Slog{}.Emit(ctx, audit.Event{Type: audit.TokenIssued})
	require.Contains(t, buf.String(), `"level":"INFO"`)
}

func TestStoreSinkPersists(t *testing.T) {
	s, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "audit.db")))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	sink := audit.Store{Store: s}
	sink.Emit(context.Background(), audit.Event{Type: audit.AccountLocked, UserID: "u1", IP: "10.0.0.1", At: time.Now()})

	recs, err := s.Audit().ListByUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "account_locked", recs[0].Type)
	require.Equal(t, "{}", recs[0].Detail)
}

func TestMetricsSinkCountsLockouts(t *testing.T) {
	m := metrics.New()
	sink := audit.Metrics{Metrics: m}
	sink.Emit(context.Background(), audit.Event{Type: audit.AccountLocked})
	sink.Emit(context.Background(), audit.Event{Type: audit.TokenIssued})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), "tollgate_lockouts_total 1")
	require.Contains(t, rec.Body.String(), `tollgate_audit_events_total{type="token_issued"} 1`)
}

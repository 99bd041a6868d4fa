package slogx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Service: "tollgate", Env: "test", Level: "debug", Output: &buf})
	logger.Debug("hello", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "tollgate", line["service"])
	require.Equal(t, "v", line["k"])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	require.NotNil(t, FromContext(context.Background()))

	l := Discard()
	require.Same(t, l, FromContext(WithContext(context.Background(), l)))
}

func TestHTTPMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Service: "tollgate", Output: &buf})

	var seen bool
	h := HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context()) != base
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize", nil))

	require.True(t, seen)
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.Contains(t, buf.String(), `"msg":"http_request"`)
	require.Contains(t, buf.String(), `"status":418`)
}

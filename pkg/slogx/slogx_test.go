package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	t.Run("falls back to default", func(t *testing.T) {
		require.Equal(t, slog.Default(), slogx.FromContext(context.Background()))
	})

	t.Run("carries consent and tpp attributes", func(t *testing.T) {
		var buf bytes.Buffer
		base := slog.New(slog.NewJSONHandler(&buf, nil))

		ctx := slogx.WithContext(context.Background(), base)
		ctx = slogx.WithTpp(ctx, "PSDDE-BAFIN-123456")
		ctx = slogx.WithConsent(ctx, "c-1")
		slogx.FromContext(ctx).Info("hello")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.Equal(t, "PSDDE-BAFIN-123456", line["tpp_id"])
		require.Equal(t, "c-1", line["consent_id"])
	})
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "test", Level: "debug", Output: &buf})

	h := slogx.HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slogx.FromContext(r.Context()).Debug("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("echoes supplied request id", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
		req.Header.Set(slogx.RequestIDHeader, "99391c7e-ad88-49ec-a2ad-99ddcb1f7721")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusTeapot, rec.Code)
		require.Equal(t, "99391c7e-ad88-49ec-a2ad-99ddcb1f7721", rec.Header().Get(slogx.RequestIDHeader))
		require.Contains(t, buf.String(), `"req_id":"99391c7e-ad88-49ec-a2ad-99ddcb1f7721"`)
		require.Contains(t, buf.String(), `"status":418`)
	})

	t.Run("generates a request id when absent", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

		require.NotEmpty(t, rec.Header().Get(slogx.RequestIDHeader))
		require.Equal(t, 2, strings.Count(buf.String(), "\n"))
	})
}

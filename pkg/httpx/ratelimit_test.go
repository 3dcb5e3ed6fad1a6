package httpx_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/aisconsent/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func fromIP(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/psu-api/v1/consents/c-1", nil)
	req.RemoteAddr = addr + ":40123"
	return req
}

// asTpp builds an account read as the authn middleware leaves it.
func asTpp(tppID, consentID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	if consentID != "" {
		req.Header.Set("Consent-ID", consentID)
	}
	if tppID == "" {
		return req
	}
	return req.WithContext(context.WithValue(req.Context(), httpx.CtxKeyTppID, tppID))
}

func status(h http.Handler, req *http.Request) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func perMinute(n int) httpx.RateLimitConfig {
	return httpx.RateLimitConfig{RequestsPerWindow: n, Window: time.Minute, Burst: n}
}

func TestKeyExtractors(t *testing.T) {
	tests := []struct {
		name      string
		extractor httpx.KeyExtractor
		req       func() *http.Request
		want      string
	}{
		{
			name:      "ip from RemoteAddr",
			extractor: httpx.IPKeyExtractor,
			req:       func() *http.Request { return fromIP("198.51.100.4") },
			want:      "198.51.100.4",
		},
		{
			name:      "ip prefers the first X-Forwarded-For hop",
			extractor: httpx.IPKeyExtractor,
			req: func() *http.Request {
				r := fromIP("10.0.0.2")
				r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")
				return r
			},
			want: "203.0.113.9",
		},
		{
			name:      "ip falls back to X-Real-IP",
			extractor: httpx.IPKeyExtractor,
			req: func() *http.Request {
				r := fromIP("10.0.0.2")
				r.Header.Set("X-Real-IP", "203.0.113.10")
				return r
			},
			want: "203.0.113.10",
		},
		{
			name:      "header value is trimmed",
			extractor: httpx.HeaderKeyExtractor("Consent-ID"),
			req:       func() *http.Request { return asTpp("", " 7a3f2c1e ") },
			want:      "7a3f2c1e",
		},
		{
			name:      "missing header",
			extractor: httpx.HeaderKeyExtractor("Consent-ID"),
			req:       func() *http.Request { return asTpp("", "") },
			want:      "",
		},
		{
			name:      "tpp from context",
			extractor: httpx.TppKeyExtractor,
			req:       func() *http.Request { return asTpp("PSDDE-BAFIN-123456", "") },
			want:      "PSDDE-BAFIN-123456",
		},
		{
			name:      "unauthenticated request has no tpp",
			extractor: httpx.TppKeyExtractor,
			req:       func() *http.Request { return asTpp("", "c-1") },
			want:      "",
		},
		{
			name:      "composite joins the parts",
			extractor: httpx.CompositeKeyExtractor(":", httpx.TppKeyExtractor, httpx.HeaderKeyExtractor("Consent-ID")),
			req:       func() *http.Request { return asTpp("tpp-1", "c-1") },
			want:      "tpp-1:c-1",
		},
		{
			name:      "composite skips empty parts",
			extractor: httpx.CompositeKeyExtractor(":", httpx.TppKeyExtractor, httpx.HeaderKeyExtractor("Consent-ID")),
			req:       func() *http.Request { return asTpp("tpp-1", "") },
			want:      "tpp-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.extractor(tt.req()))
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("burst then block", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(perMinute(3), httpx.IPKeyExtractor)(okHandler)
		for i := range 3 {
			require.Equal(t, http.StatusOK, status(h, fromIP("198.51.100.4")), "request %d", i+1)
		}
		require.Equal(t, http.StatusTooManyRequests, status(h, fromIP("198.51.100.4")))
		require.Equal(t, http.StatusOK, status(h, fromIP("198.51.100.5")), "other clients keep their budget")
	})

	t.Run("burst below the rate", func(t *testing.T) {
		cfg := httpx.RateLimitConfig{RequestsPerWindow: 10, Window: time.Second, Burst: 5}
		h := httpx.RateLimitMiddleware(cfg, httpx.IPKeyExtractor)(okHandler)
		for i := range 5 {
			require.Equal(t, http.StatusOK, status(h, fromIP("198.51.100.4")), "request %d", i+1)
		}
	})

	t.Run("no key is not limited", func(t *testing.T) {
		none := func(*http.Request) string { return "" }
		h := httpx.RateLimitMiddleware(perMinute(1), none)(okHandler)
		for range 3 {
			require.Equal(t, http.StatusOK, status(h, fromIP("198.51.100.4")))
		}
	})

	t.Run("rejection carries headers and a tppMessages body", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(perMinute(1), httpx.IPKeyExtractor)(okHandler)
		require.Equal(t, http.StatusOK, status(h, fromIP("198.51.100.4")))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP("198.51.100.4"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Contains(t, rec.Body.String(), "tppMessages")
		require.Contains(t, rec.Body.String(), "ACCESS_EXCEEDED")
	})
}

func TestRateLimitByTpp(t *testing.T) {
	h := httpx.RateLimitByTpp(perMinute(2))(okHandler)

	for range 2 {
		require.Equal(t, http.StatusOK, status(h, asTpp("tpp-1", "c-1")))
	}
	require.Equal(t, http.StatusTooManyRequests, status(h, asTpp("tpp-1", "c-2")), "the budget is shared across consents")
	require.Equal(t, http.StatusOK, status(h, asTpp("tpp-2", "c-3")))
}

func TestRateLimitByTppAndHeader(t *testing.T) {
	h := httpx.RateLimitByTppAndHeader(perMinute(2), "Consent-ID")(okHandler)

	for range 2 {
		require.Equal(t, http.StatusOK, status(h, asTpp("tpp-1", "consent-a")))
	}
	require.Equal(t, http.StatusTooManyRequests, status(h, asTpp("tpp-1", "consent-a")))
	require.Equal(t, http.StatusOK, status(h, asTpp("tpp-1", "consent-b")))
	require.Equal(t, http.StatusOK, status(h, asTpp("tpp-2", "consent-a")), "same consent id under another tpp")
}

func TestRateLimitProfiles(t *testing.T) {
	tiers := []httpx.RateLimitConfig{httpx.StrictLimit, httpx.ModerateLimit, httpx.LenientLimit, httpx.PublicLimit}
	for i, cfg := range tiers {
		require.Positive(t, cfg.RequestsPerWindow)
		require.Positive(t, cfg.Window)
		require.Positive(t, cfg.Burst)
		if i > 0 {
			require.Less(t, tiers[i-1].RequestsPerWindow, cfg.RequestsPerWindow)
		}
	}
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	tests := []struct {
		name string
		env  map[string]string
		want httpx.RateLimitConfig
	}{
		{"defaults", nil, def},
		{
			"requests only",
			map[string]string{"RATELIMIT_TEST_REQUESTS": "50"},
			httpx.RateLimitConfig{RequestsPerWindow: 50, Window: time.Minute, Burst: 10},
		},
		{
			"all fields",
			map[string]string{
				"RATELIMIT_TEST_REQUESTS":   "200",
				"RATELIMIT_TEST_WINDOW_SEC": "30",
				"RATELIMIT_TEST_BURST":      "250",
			},
			httpx.RateLimitConfig{RequestsPerWindow: 200, Window: 30 * time.Second, Burst: 250},
		},
		{
			"invalid values",
			map[string]string{
				"RATELIMIT_TEST_REQUESTS":   "lots",
				"RATELIMIT_TEST_WINDOW_SEC": "-10",
				"RATELIMIT_TEST_BURST":      "0",
			},
			def,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			require.Equal(t, tt.want, httpx.ParseRateLimitFromEnv("TEST", def))
		})
	}
}

func BenchmarkRateLimitManyTpps(b *testing.B) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1_000_000, Window: time.Minute, Burst: 1000}
	h := httpx.RateLimitByTppAndHeader(cfg, "Consent-ID")(okHandler)

	for i := 0; b.Loop(); i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, asTpp(fmt.Sprintf("tpp-%d", i%500), fmt.Sprintf("c-%d", i%7)))
	}
}

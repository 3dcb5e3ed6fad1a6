package httpx

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: RequestsPerWindow refill over Window,
// with at most Burst tokens banked.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Limit tiers used by the router. Each tier can be overridden with
// RATELIMIT_<TIER>_REQUESTS, RATELIMIT_<TIER>_WINDOW_SEC and
// RATELIMIT_<TIER>_BURST.
var (
	// StrictLimit guards SCA credential steps against guessing.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// ModerateLimit covers consent and authorisation management.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}

	// LenientLimit covers account reads and the PSU-API.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}

	// PublicLimit covers health probes and the API docs.
	PublicLimit = RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
)

func init() {
	StrictLimit = ParseRateLimitFromEnv("STRICT", StrictLimit)
	ModerateLimit = ParseRateLimitFromEnv("MODERATE", ModerateLimit)
	LenientLimit = ParseRateLimitFromEnv("LENIENT", LenientLimit)
	PublicLimit = ParseRateLimitFromEnv("PUBLIC", PublicLimit)
}

// ParseRateLimitFromEnv overlays RATELIMIT_<tier>_* variables on def.
// Values that are not positive integers are ignored.
func ParseRateLimitFromEnv(tier string, def RateLimitConfig) RateLimitConfig {
	cfg := def
	prefix := "RATELIMIT_" + tier + "_"
	if n, ok := positiveEnv(prefix + "REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if n, ok := positiveEnv(prefix + "WINDOW_SEC"); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv(prefix + "BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveEnv(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// KeyExtractor names the bucket a request draws from. An empty key means
// the request is not limited.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys by client address, trusting the first
// X-Forwarded-For hop, then X-Real-IP, then the socket peer.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TppKeyExtractor keys by the TPP the bearer token was issued to.
func TppKeyExtractor(r *http.Request) string {
	return TppIDFromContext(r.Context())
}

// HeaderKeyExtractor keys by a request header such as Consent-ID.
func HeaderKeyExtractor(name string) KeyExtractor {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
}

// CompositeKeyExtractor joins the non-empty keys of several extractors.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extract := range extractors {
			if k := extract(r); k != "" {
				parts = append(parts, k)
			}
		}
		return strings.Join(parts, sep)
	}
}

const sweepEvery = 5 * time.Minute

// buckets holds one limiter per key. Idle limiters are swept so that
// one-off keys such as expired consent ids do not accumulate.
type buckets struct {
	limit rate.Limit
	burst int

	byKey sync.Map // string -> *rate.Limiter

	mu        sync.Mutex
	lastSweep time.Time
}

func (b *buckets) get(key string) *rate.Limiter {
	if l, ok := b.byKey.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, loaded := b.byKey.LoadOrStore(key, rate.NewLimiter(b.limit, b.burst))
	if !loaded {
		b.sweep()
	}
	return l.(*rate.Limiter)
}

// sweep drops limiters whose bucket has refilled completely.
func (b *buckets) sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.lastSweep) < sweepEvery {
		return
	}
	b.lastSweep = time.Now()
	b.byKey.Range(func(k, v any) bool {
		if v.(*rate.Limiter).Tokens() >= float64(b.burst) {
			b.byKey.Delete(k)
		}
		return true
	})
}

// RateLimitMiddleware rejects requests over cfg with 429 and an
// ACCESS_EXCEEDED tppMessages body. Each call owns its own buckets.
func RateLimitMiddleware(cfg RateLimitConfig, key KeyExtractor) Middleware {
	b := &buckets{
		limit:     rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:     cfg.Burst,
		lastSweep: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				slogx.FromContext(r.Context()).Warn("rate limit: no key for request, not limiting")
				next.ServeHTTP(w, r)
				return
			}

			l := b.get(k)
			if l.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			res := l.Reserve()
			retryAfter := max(int(res.Delay().Seconds()), 1)
			res.Cancel()

			h := w.Header()
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			h.Set("X-RateLimit-Window", cfg.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"key", k,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)

			WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"tppMessages": []map[string]string{{
					"category": "ERROR",
					"code":     "ACCESS_EXCEEDED",
					"text":     "Too many requests. Please try again later.",
				}},
			})
		})
	}
}

// RateLimitByIP limits by client address. Used where no token is presented.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, IPKeyExtractor)
}

// RateLimitByTpp limits by TPP and client address.
func RateLimitByTpp(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", TppKeyExtractor, IPKeyExtractor))
}

// RateLimitByTppAndHeader limits by TPP and a header value, so one busy
// consent cannot starve the TPP's other consents.
func RateLimitByTppAndHeader(cfg RateLimitConfig, header string) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", TppKeyExtractor, HeaderKeyExtractor(header)))
}

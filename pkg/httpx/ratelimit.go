package httpx

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/tollgate/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimit is a token bucket profile.
type RateLimit struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// Limits groups the profiles the router applies per endpoint class.
type Limits struct {
	// Strict covers credential, MFA and token endpoints.
	Strict RateLimit
	// Moderate covers authenticated account operations.
	Moderate RateLimit
	// Public covers metadata and JWKS.
	Public RateLimit
}

// DefaultLimits are used when no environment override is present.
func DefaultLimits() Limits {
	return Limits{
		Strict:   RateLimit{Requests: 10, Window: time.Minute, Burst: 10},
		Moderate: RateLimit{Requests: 30, Window: time.Minute, Burst: 30},
		Public:   RateLimit{Requests: 1000, Window: time.Minute, Burst: 1000},
	}
}

// LimitsFromEnv applies RATELIMIT_<CLASS>_{REQUESTS,WINDOW_SEC,BURST}
// overrides to DefaultLimits.
func LimitsFromEnv() Limits {
	l := DefaultLimits()
	l.Strict = l.Strict.fromEnv("STRICT")
	l.Moderate = l.Moderate.fromEnv("MODERATE")
	l.Public = l.Public.fromEnv("PUBLIC")
	return l
}

func (rl RateLimit) fromEnv(class string) RateLimit {
	read := func(field string) (int, bool) {
		v, err := strconv.Atoi(os.Getenv("RATELIMIT_" + class + "_" + field))
		return v, err == nil && v > 0
	}
	if v, ok := read("REQUESTS"); ok {
		rl.Requests = v
	}
	if v, ok := read("WINDOW_SEC"); ok {
		rl.Window = time.Duration(v) * time.Second
	}
	if v, ok := read("BURST"); ok {
		rl.Burst = v
	}
	return rl
}

// KeyFunc groups requests into buckets. An empty key bypasses limiting.
type KeyFunc func(*http.Request) string

// ByIP buckets by client address.
func ByIP(trustProxy bool) KeyFunc {
	return func(r *http.Request) string { return ClientIP(r, trustProxy) }
}

// BySubject buckets by authenticated subject, falling back to IP.
func BySubject(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		if sub := SubjectFrom(r.Context()); sub != "" {
			return "sub:" + sub
		}
		return ClientIP(r, trustProxy)
	}
}

// ByIPAndField buckets by client address plus a form field such as
// client_id.
func ByIPAndField(trustProxy bool, field string) KeyFunc {
	return func(r *http.Request) string {
		ip := ClientIP(r, trustProxy)
		if err := r.ParseForm(); err != nil {
			return ip
		}
		return strings.Join([]string{ip, r.FormValue(field)}, ":")
	}
}

type buckets struct {
	limit rate.Limit
	burst int

	m sync.Map // key -> *rate.Limiter

	mu        sync.Mutex
	lastSweep time.Time
}

func (b *buckets) get(key string) *rate.Limiter {
	if l, ok := b.m.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := b.m.LoadOrStore(key, rate.NewLimiter(b.limit, b.burst))
	b.sweep()
	return l.(*rate.Limiter)
}

// sweep drops idle limiters (full buckets) at most every five minutes.
func (b *buckets) sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.lastSweep) < 5*time.Minute {
		return
	}
	b.lastSweep = time.Now()
	b.m.Range(func(k, v any) bool {
		if v.(*rate.Limiter).Tokens() >= float64(b.burst) {
			b.m.Delete(k)
		}
		return true
	})
}

// Limit rejects requests over rl with 429 and a Retry-After header.
func Limit(rl RateLimit, key KeyFunc) Middleware {
	b := &buckets{
		limit:     rate.Limit(float64(rl.Requests) / rl.Window.Seconds()),
		burst:     rl.Burst,
		lastSweep: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			lim := b.get(k)
			if lim.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			res := lim.Reserve()
			retry := max(int(res.Delay().Seconds()), 1)
			res.Cancel()

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"key", k,
				"path", r.URL.Path,
				"retry_after", retry,
			)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "Too many requests. Please try again later.",
			})
		})
	}
}

package app

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"userhub/cmd/internal/httpx"
)

const maxRateLimitKeys = 50000

// ipRateLimiter is a per-client sliding-window limiter.
type ipRateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	limit  int
	window time.Duration

	lastSweep time.Time
}

func newIPRateLimiter(limit int, window time.Duration) *ipRateLimiter {
	return &ipRateLimiter{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// allow records an event for key at now. When the window is full it returns
// false and how long until the oldest event leaves the window.
func (l *ipRateLimiter) allow(key string, now time.Time) (ok bool, remaining int, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window || len(l.events) > maxRateLimitKeys {
		l.sweepLocked(now)
	}

	cut := now.Add(-l.window)
	kept := make([]time.Time, 0, len(l.events[key])+1)
	for _, t := range l.events[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.events[key] = kept
		return false, 0, kept[0].Add(l.window).Sub(now)
	}
	kept = append(kept, now)
	l.events[key] = kept
	return true, l.limit - len(kept), 0
}

func (l *ipRateLimiter) sweepLocked(now time.Time) {
	cut := now.Add(-l.window)
	for k, ts := range l.events {
		if len(ts) == 0 || !ts[len(ts)-1].After(cut) {
			delete(l.events, k)
		}
	}
	l.lastSweep = now
}

// rateLimitExempt reports paths that monitoring systems poll.
func rateLimitExempt(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}

// WithRateLimit caps requests per client IP within cfg.RateLimitWindow.
// A zero RateLimitMax disables the limiter.
func WithRateLimit(cfg Config, log *slog.Logger, now func() time.Time) Middleware {
	if cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if now == nil {
		now = time.Now
	}
	lim := newIPRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	limit := strconv.Itoa(cfg.RateLimitMax)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rateLimitExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := "unknown"
			if ip := httpx.ClientIP(r, cfg.Auth.TrustProxy); ip != nil {
				key = ip.String()
			}

			ok, remaining, retry := lim.allow(key, now())
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			secs := int(math.Ceil(retry.Seconds()))
			if secs < 1 {
				secs = 1
			}
			h.Set("Retry-After", strconv.Itoa(secs))
			log.WarnContext(r.Context(), "http.rate_limited",
				"ip", key,
				"path", r.URL.Path,
				"retry_after_s", secs,
				"request_id", httpx.RequestIDFrom(r.Context()),
			)
			httpx.Fail(w, http.StatusTooManyRequests, "Too many requests from this IP, please try again later.", "")
		})
	}
}

package authapi

import (
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"userhub/cmd/internal/httpx"
)

// maxThrottleKeys is a hard cap on tracked IPs plus emails. When it is exceeded,
// expired entries are swept first, then the least recently failed keys are evicted
// until the maps are back to 90% of the cap.
const maxThrottleKeys = 10_000

type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// loginThrottle tracks failed logins per client IP and per email in memory.
type loginThrottle struct {
	mu     sync.Mutex
	byIP   map[string][]time.Time
	byUser map[string][]time.Time

	ipMax      int
	ipWindow   time.Duration
	userWindow time.Duration
	tiers      []lockoutTier
	retention  time.Duration
	maxKeys    int
}

func newLoginThrottle(cfg Config) *loginThrottle {
	t := &loginThrottle{
		byIP:       make(map[string][]time.Time),
		byUser:     make(map[string][]time.Time),
		ipMax:      cfg.LoginIPMax,
		ipWindow:   cfg.LoginIPWindow,
		userWindow: cfg.LoginUserWindow,
		tiers:      cfg.lockoutTiers(),
		maxKeys:    maxThrottleKeys,
	}
	t.retention = max(t.ipWindow, t.userWindow)
	for _, tier := range t.tiers {
		t.retention = max(t.retention, tier.Duration)
	}
	return t
}

// check reports whether a login from ip for identifier must be refused right now.
func (t *loginThrottle) check(ip net.IP, identifier string, now time.Time) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ip != nil && t.ipMax > 0 {
		if blocked, retry := evaluateWindowThrottle(now, t.byIP[ip.String()], t.ipMax, t.ipWindow); blocked {
			return true, retry
		}
	}
	if identifier != "" {
		recent := since(t.byUser[identifier], now.Add(-t.userWindow))
		if blocked, retry := evaluateProgressiveLockout(now, recent, t.tiers); blocked {
			return true, retry
		}
	}
	return false, 0
}

func (t *loginThrottle) recordFailure(ip net.IP, identifier string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cut := now.Add(-t.retention)
	if ip != nil {
		k := ip.String()
		t.byIP[k] = append(since(t.byIP[k], cut), now)
	}
	if identifier != "" {
		t.byUser[identifier] = append(since(t.byUser[identifier], cut), now)
	}
	if t.keys() > t.maxKeys {
		sweep(t.byIP, cut)
		sweep(t.byUser, cut)
		if over := t.keys() - t.maxKeys*9/10; over > 0 && t.keys() > t.maxKeys {
			t.evictOldest(over)
		}
	}
}

func (t *loginThrottle) keys() int { return len(t.byIP) + len(t.byUser) }

// evictOldest drops the n keys whose newest failure is the oldest, across both maps.
func (t *loginThrottle) evictOldest(n int) {
	type entry struct {
		m      map[string][]time.Time
		key    string
		newest time.Time
	}
	entries := make([]entry, 0, t.keys())
	for _, m := range []map[string][]time.Time{t.byIP, t.byUser} {
		for k, ts := range m {
			if len(ts) == 0 {
				entries = append(entries, entry{m: m, key: k})
				continue
			}
			entries = append(entries, entry{m: m, key: k, newest: ts[len(ts)-1]})
		}
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.newest.Compare(b.newest) })
	for _, e := range entries[:min(n, len(entries))] {
		delete(e.m, e.key)
	}
}

// reset forgets failures for identifier after a successful login.
func (t *loginThrottle) reset(identifier string) {
	t.mu.Lock()
	delete(t.byUser, identifier)
	t.mu.Unlock()
}

// evaluateWindowThrottle blocks once failures inside window reach limit. The retry
// delay lasts until the oldest counted failure leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	var (
		count  int
		oldest time.Time
	)
	for _, f := range failures {
		if !f.After(cut) {
			continue
		}
		count++
		if oldest.IsZero() || f.Before(oldest) {
			oldest = f
		}
	}
	if count < limit {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

// evaluateProgressiveLockout applies the first tier (highest threshold first) whose
// threshold is met and whose lockout, measured from the newest failure, is still running.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}
	newest := failures[0]
	for _, f := range failures[1:] {
		if f.After(newest) {
			newest = f
		}
	}
	for _, tier := range tiers {
		if len(failures) < tier.Threshold {
			continue
		}
		if retry := newest.Add(tier.Duration).Sub(now); retry > 0 {
			return true, retry
		}
	}
	return false, 0
}

func since(ts []time.Time, cut time.Time) []time.Time {
	out := make([]time.Time, 0, len(ts))
	for _, t := range ts {
		if t.After(cut) {
			out = append(out, t)
		}
	}
	return out
}

func sweep(m map[string][]time.Time, cut time.Time) {
	for k, ts := range m {
		if kept := since(ts, cut); len(kept) == 0 {
			delete(m, k)
		} else {
			m[k] = kept
		}
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := max(int64(retryAfter.Seconds()), 1)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	httpx.Fail(w, http.StatusTooManyRequests, "Too many login attempts, please try again later", "")
}

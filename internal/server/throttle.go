package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/diewo77/go-recipes/internal/httpx"
	"golang.org/x/time/rate"
)

// IPThrottle limits requests per client IP with a token bucket each.
type IPThrottle struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPThrottle allows perSecond requests with the given burst. A perSecond
// of zero or less disables throttling. Buckets unused for ten minutes are dropped.
func NewIPThrottle(perSecond float64, burst int) *IPThrottle {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &IPThrottle{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether the client at ip may proceed.
func (t *IPThrottle) Allow(ip string) bool {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range t.visitors {
		if now.Sub(v.lastSeen) > t.idle {
			delete(t.visitors, k)
		}
	}
	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware answers 429 once a client exceeds its budget.
func (t *IPThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			httpx.JSONError(w, http.StatusTooManyRequests, "throttled", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

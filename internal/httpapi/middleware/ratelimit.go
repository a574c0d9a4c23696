package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// bucket holds the tokens left for one client as of seen.
type bucket struct {
	tokens float64
	seen   time.Time
}

// limiter is a per-client token bucket. Buckets idle for longer than idle
// are dropped on the next call after that interval.
type limiter struct {
	perSec float64
	burst  float64
	idle   time.Duration
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiter(perSec float64, burst int, idle time.Duration) *limiter {
	return &limiter{
		perSec:  perSec,
		burst:   float64(burst),
		idle:    idle,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// take spends one token for key. When none is left it reports how long the
// client has to wait for the next one.
func (l *limiter) take(key string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, seen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.seen).Seconds()*l.perSec)
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	missing := 1 - b.tokens
	return false, time.Duration(missing / l.perSec * float64(time.Second))
}

func (l *limiter) allow(key string) bool {
	ok, _ := l.take(key)
	return ok
}

// sweep drops idle buckets at most once per idle interval. Caller holds mu.
func (l *limiter) sweep(now time.Time) {
	if l.idle <= 0 || now.Sub(l.lastSweep) < l.idle {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.idle {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// RateLimit limits each client to reqPerMin requests per minute with the given
// burst; reqPerMin <= 0 disables it and a burst below 1 is raised to 1.
// Clients are keyed by the host part of RemoteAddr, so mount chi's RealIP
// ahead of it when running behind a proxy.
func RateLimit(reqPerMin int, burst int) func(http.Handler) http.Handler {
	if reqPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	l := newLimiter(float64(reqPerMin)/60, burst, 10*time.Minute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.take(clientKey(r))
			if !ok {
				w.Header().Set("Retry-After", retryAfter(wait))
				WriteJSON(w, http.StatusTooManyRequests, Envelope{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter renders wait as whole seconds, never below one.
func retryAfter(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

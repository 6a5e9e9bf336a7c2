// Package ratelimit throttles the unauthenticated client surface (spec §5:
// "Rate limiting is applied per source IP and never applied to conditional
// UPDATE statements against license data"). It is deliberately independent
// of license state: a client that is rate limited never touches the engine
// or the repository.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dmriding/talos/internal/httpx"
)

// window is a fixed-size counter bucket for one key, reset once expires has
// passed. A plain fixed-window counter (not a sliding log) is enough for
// the per-IP abuse case this guards against.
type window struct {
	count   int
	expires time.Time
}

// Limiter is a per-key fixed-window rate limiter backed by a bounded LRU so
// memory use cannot grow without bound under a distributed-address attack.
type Limiter struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, *window]
	limit    int
	period   time.Duration
}

// New builds a Limiter allowing limit requests per period for each key,
// tracking at most maxKeys keys concurrently (least-recently-used keys are
// evicted first).
func New(limit int, period time.Duration, maxKeys int) (*Limiter, error) {
	cache, err := lru.New[string, *window](maxKeys)
	if err != nil {
		return nil, err
	}
	return &Limiter{cache: cache, limit: limit, period: period}, nil
}

// Allow reports whether key may proceed, how long the caller should wait
// before retrying when it may not, and how many requests remain in the
// current window.
func (l *Limiter) Allow(key string, now time.Time) (allowed bool, retryAfter time.Duration, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.cache.Get(key)
	if !ok || now.After(w.expires) {
		w = &window{count: 0, expires: now.Add(l.period)}
		l.cache.Add(key, w)
	}

	if w.count >= l.limit {
		return false, w.expires.Sub(now), 0
	}
	w.count++
	return true, 0, l.limit - w.count
}

// Middleware wraps a chi-style handler, keying on the request's resolved
// client IP (set by chi's middleware.RealIP upstream in the chain).
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		allowed, retryAfter, remaining := l.Allow(key, time.Now().UTC())

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			httpx.WriteError(w, httpx.CodeRateLimited, "rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := lastColon(host); idx >= 0 {
		host = host[:idx]
	}
	return host
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/storefront/internal/handler"
)

// sweepThreshold bounds the entry map without a background sweeper.
const sweepThreshold = 4096

// ClientIP returns a resolver for the client address used in rate-limit keys
// and request logs. Forwarded headers (CF-Connecting-IP, then the first
// X-Forwarded-For hop) are honored only when trustProxy is set; any caller
// can send them otherwise.
func ClientIP(trustProxy bool) func(*http.Request) string {
	if !trustProxy {
		return RemoteIP
	}
	return func(r *http.Request) string {
		if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
			return ip
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		return RemoteIP(r)
	}
}

// RemoteIP is the host part of the connection's remote address.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type entry struct {
	count    int
	windowAt time.Time
}

// RateLimiter is a fixed-window, in-memory limiter.
type RateLimiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	now      func() time.Time
	onReject func(r *http.Request)
}

type RateLimiterOption func(*RateLimiter)

// WithRejectHook registers fn to run for every request turned away.
func WithRejectHook(fn func(r *http.Request)) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.onReject = fn
	}
}

func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Allow returns true if the key has not exceeded limit in the given window,
// and the time at which the current window ends.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.entries) >= sweepThreshold {
		rl.sweep(now)
	}

	e, ok := rl.entries[key]
	if !ok || now.After(e.windowAt) {
		e = &entry{count: 1, windowAt: now.Add(window)}
		rl.entries[key] = e
		return true, e.windowAt
	}
	e.count++
	return e.count <= limit, e.windowAt
}

func (rl *RateLimiter) sweep(now time.Time) {
	for key, e := range rl.entries {
		if now.After(e.windowAt) {
			delete(rl.entries, key)
		}
	}
}

// RateLimit returns middleware that rejects requests over limit per key with
// 429 and a Retry-After header.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, resetAt := limiter.Allow(keyFunc(r), limit, window)
			if !ok {
				if limiter.onReject != nil {
					limiter.onReject(r)
				}
				retry := int(resetAt.Sub(limiter.now()).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				handler.WriteJSON(w, http.StatusTooManyRequests, handler.ErrorBody{
					Code:    "rate_limited",
					Message: "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

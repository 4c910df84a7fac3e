// ratelimit.go - Sliding-window limiter by client IP for the fruit picks endpoint.
package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// rateLimiter allows rate requests per window for each client IP.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      int
	window    time.Duration
	lastPrune time.Time
	now       func() time.Time
}

// visitor tracks request timestamps for a single IP address
type visitor struct {
	requests []time.Time
}

// newRateLimiter creates a rate limiter that allows 'rate' requests per 'window'.
// Example: newRateLimiter(30, time.Minute) allows 30 picks per minute per IP.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
}

// middleware rejects requests over the limit with 429 and a Retry-After hint.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow checks if a request from the given IP should be allowed
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	rl.prune(now)

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{requests: make([]time.Time, 0, rl.rate)}
		rl.visitors[ip] = v
	}

	// Drop requests older than the window
	kept := v.requests[:0]
	for _, t := range v.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	v.requests = kept

	if len(v.requests) >= rl.rate {
		return false
	}
	v.requests = append(v.requests, now)
	return true
}

// prune forgets visitors idle for two windows. Caller holds rl.mu.
func (rl *rateLimiter) prune(now time.Time) {
	if now.Sub(rl.lastPrune) < rl.window {
		return
	}
	rl.lastPrune = now

	cutoff := now.Add(-2 * rl.window)
	for ip, v := range rl.visitors {
		if len(v.requests) == 0 || v.requests[len(v.requests)-1].Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

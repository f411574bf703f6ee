package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// authMiddleware returns a middleware that validates bearer tokens.
// If token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include "Authorization: Bearer <token>" header.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			unauthorized(w)
			return
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, "Bearer ")), []byte(token)) != 1 {
			unauthorized(w)
			return
		}
		next(w, r)
	}
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
}

// rateLimiter holds one token bucket per client address. A nil limiter
// admits everything.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*rate.Limiter),
	}
}

func (l *rateLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.clients[client]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.clients[client] = limiter
	}
	return limiter.Allow()
}

func (l *rateLimiter) wrap(next http.HandlerFunc) http.HandlerFunc {
	if l == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientKey(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

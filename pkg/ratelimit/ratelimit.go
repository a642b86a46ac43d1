// Package ratelimit provides a per-client token bucket limiter for the HTTP API.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter grants each client maxRequests tokens per window. Tokens refill
// continuously in proportion to elapsed time.
type Limiter struct {
	maxRequests int
	window      time.Duration
	clients     map[string]*bucket
	mu          sync.Mutex
	cleanupTick *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// New creates a limiter and starts its idle-client cleanup.
func New(maxRequests int, window time.Duration) *Limiter {
	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		clients:     make(map[string]*bucket),
		done:        make(chan struct{}),
	}

	l.cleanupTick = time.NewTicker(window)
	go l.cleanup()

	return l
}

// Allow consumes a token for clientID and reports whether one was available.
func (l *Limiter) Allow(clientID string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[clientID]
	if !ok {
		b = &bucket{tokens: float64(l.maxRequests), lastSeen: now}
		l.clients[clientID] = b
	}

	rate := float64(l.maxRequests) / float64(l.window)
	b.tokens = min(float64(l.maxRequests), b.tokens+rate*float64(now.Sub(b.lastSeen)))
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Clients returns the number of tracked clients
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) cleanup() {
	for {
		select {
		case <-l.cleanupTick.C:
			l.removeIdle(time.Now().Add(-2 * l.window))
		case <-l.done:
			return
		}
	}
}

// removeIdle drops clients not seen since cutoff. An idle client's bucket
// would be full again, so forgetting it changes nothing.
func (l *Limiter) removeIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, id)
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.cleanupTick.Stop()
	})
}

// Middleware rejects requests from clients over their limit with 429.
// Clients are keyed by remote IP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientKey(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey returns the host part of the request's remote address.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebogdum/vizgate/config"
	"github.com/ebogdum/vizgate/metrics"
	"github.com/ebogdum/vizgate/server/handlers"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter keeps one token bucket per client address
type ClientRateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	idleTime time.Duration
	now      func() time.Time
}

// NewClientRateLimiter creates a limiter from config. Buckets idle for longer
// than the cleanup interval are dropped by Cleanup.
func NewClientRateLimiter(cfg config.LimiterConfig) *ClientRateLimiter {
	idle := cfg.CleanupInterval
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &ClientRateLimiter{
		clients:  make(map[string]*clientLimiter),
		rps:      rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
		idleTime: idle,
		now:      time.Now,
	}
}

// Allow reports whether client may make a request now
func (l *ClientRateLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[client]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = c
	}
	c.lastSeen = l.now()
	return c.limiter.AllowN(c.lastSeen, 1)
}

// Cleanup drops buckets that have been idle longer than the cleanup interval
// and returns how many were removed.
func (l *ClientRateLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTime)
	removed := 0
	for client, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, client)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every cleanup interval until stop is closed
func (l *ClientRateLimiter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(l.idleTime)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// V1RateLimitMiddleware rejects requests from clients over their rate with 429
func V1RateLimitMiddleware(limiter *ClientRateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientAddr(r)
			if !limiter.Allow(client) {
				logger.Warn("Request rate limited",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("client", client),
					zap.String("request_id", RequestID(r.Context())))
				metrics.ErrorsTotal.WithLabelValues("http", "rate_limited").Inc()
				handlers.SendErrorResponse(w, logger, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr strips the port from RemoteAddr, which RealIP may already have rewritten
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/teemow/decap-oauth/internal/instrumentation"
	"github.com/teemow/decap-oauth/internal/logging"
)

const (
	// DefaultRateLimitCleanup is how often idle per-IP limiters are swept.
	DefaultRateLimitCleanup = 5 * time.Minute

	// rateLimiterIdleTTL is how long a limiter may sit unused before removal.
	rateLimiterIdleTTL = 10 * time.Minute
)

// RateLimiter implements a token bucket rate limiter per IP address
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*visitor
	rate       rate.Limit // tokens per second
	burst      int        // max burst size
	cleanup    time.Duration
	trustProxy bool // whether to trust proxy headers
	logger     logging.Logger
	now        func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// visitor is the limiter for one client IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter and starts its cleanup goroutine.
// Call Stop to release it. A non-positive cleanup selects DefaultRateLimitCleanup.
func NewRateLimiter(perSecond, burst int, trustProxy bool, cleanup time.Duration, logger logging.Logger) *RateLimiter {
	if cleanup <= 0 {
		cleanup = DefaultRateLimitCleanup
	}
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}

	rl := &RateLimiter{
		limiters:   make(map[string]*visitor),
		rate:       rate.Limit(perSecond),
		burst:      burst,
		cleanup:    cleanup,
		trustProxy: trustProxy,
		logger:     logger,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go rl.cleanupInactiveLimiters()

	return rl
}

// Allow checks if a request from the given IP should be allowed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	v, exists := rl.limiters[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = v
	}
	v.lastSeen = rl.now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

// size returns the number of tracked client IPs.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Stop terminates the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}

// cleanupInactiveLimiters removes limiters that haven't been used recently
func (rl *RateLimiter) cleanupInactiveLimiters() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			if removed := rl.sweep(rateLimiterIdleTTL); removed > 0 {
				rl.logger.Debug("removed idle rate limiters", "count", removed, "tracked", rl.size())
			}
		}
	}
}

// sweep drops limiters idle for longer than ttl and reports how many were removed.
func (rl *RateLimiter) sweep(ttl time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for ip, v := range rl.limiters {
		if now.Sub(v.lastSeen) > ttl {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

// Middleware rejects requests over the per-IP budget with 429.
func (rl *RateLimiter) Middleware(metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r, rl.trustProxy)

		if !rl.Allow(ip) {
			rl.logger.Warn("rate limit exceeded",
				"client_ip_hash", logging.HashForLogging(ip),
				"path", instrumentation.PathLabel(r.URL.Path))
			metrics.RecordRateLimited(r.Context(), instrumentation.PathLabel(r.URL.Path))

			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("Rate limit exceeded. Please try again later"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIPFunc returns the client IP extractor matching the proxy trust setting.
func ClientIPFunc(trustProxy bool) func(*http.Request) string {
	return func(r *http.Request) string {
		return getClientIP(r, trustProxy)
	}
}

// getClientIP extracts the client IP address from the request
// trustProxy: if true, trust X-Forwarded-For and X-Real-IP headers (only if behind trusted proxy)
func getClientIP(r *http.Request, trustProxy bool) string {
	// Only trust proxy headers if explicitly configured
	if trustProxy {
		// Take the first IP if multiple
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	// Fall back to RemoteAddr (always trusted)
	return extractIPFromAddr(r.RemoteAddr)
}

// extractIPFromAddr extracts the IP address from "IP:port" or "[IPv6]:port" format
func extractIPFromAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

package http

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"collections/internal/metrics"
)

// rateLimiterConfig controls the per-client limits.
type rateLimiterConfig struct {
	Scope           string
	Rate            rate.Limit
	Burst           int
	CleanupInterval time.Duration
}

// perMinuteConfig spreads requestsPerMinute evenly and allows the whole
// minute's budget as a burst.
func perMinuteConfig(scope string, requestsPerMinute int) rateLimiterConfig {
	return rateLimiterConfig{
		Scope:           scope,
		Rate:            rate.Limit(float64(requestsPerMinute) / 60.0),
		Burst:           requestsPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	config  rateLimiterConfig
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

// newRateLimiter starts the background cleanup of idle clients. It runs until
// ctx is done.
func newRateLimiter(ctx context.Context, config rateLimiterConfig, recorder metrics.Recorder, logger *slog.Logger) *rateLimiter {
	rl := &rateLimiter{
		config:   config,
		metrics:  recorder,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*clientLimiter),
	}

	go rl.cleanupLoop(ctx)

	return rl
}

func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !rl.limiterFor(key).AllowN(rl.now(), 1) {
			rl.metrics.RecordRateLimited(rl.config.Scope)
			rl.logger.Warn("rate limit exceeded", "client_ip", key, "scope", rl.config.Scope)
			writeRateLimitResponse(w, rl.config.Rate)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *rateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cl, ok := rl.limiters[key]; ok {
		cl.lastAccess = rl.now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	rl.limiters[key] = &clientLimiter{limiter: limiter, lastAccess: rl.now()}
	return limiter
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *rateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// cleanup drops clients idle for more than two cleanup intervals.
func (rl *rateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
}

// clientIP uses RemoteAddr, which chi's RealIP middleware has already
// rewritten from the forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse sets Retry-After to the time until one token refills.
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfter := 1
	if limit > 0 {
		retryAfter = max(int(math.Ceil(1.0/float64(limit))), 1)
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, http.StatusTooManyRequests, "too many requests")
}

// Package ratelimit implements a Redis fixed-window limiter for sensitive endpoints.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/metrics"
)

const pingTimeout = 2 * time.Second

// Limiter counts requests per client IP in fixed windows using INCR/EXPIRE.
// Without a reachable Redis it lets every request through.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
}

// New connects to Redis when cfg.RedisAddr is set. A failed ping leaves the
// limiter disabled so the API stays available.
func New(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{limit: cfg.LoginLimit, window: cfg.LoginWindow, logger: logger}
	if cfg.RedisAddr == "" || cfg.LoginLimit <= 0 {
		return l
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, rate limiting disabled", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return l
	}
	l.client = client
	return l
}

// Enabled reports whether requests are actually being counted.
func (l *Limiter) Enabled() bool {
	return l != nil && l.client != nil
}

// Allow increments the counter for ident and reports whether it is still
// within the limit. Redis errors allow the request.
func (l *Limiter) Allow(ctx context.Context, endpoint, ident string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	key := "rl:" + endpoint + ":" + strconv.FormatInt(int64(l.window.Seconds()), 10) + ":" + ident

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return true, err
		}
	}
	return count <= int64(l.limit), nil
}

// Middleware rejects requests over the limit with 429.
func (l *Limiter) Middleware(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := l.Allow(r.Context(), endpoint, clientIP(r))
			if err != nil {
				l.logger.Warn("rate limiter error, allowing request", "endpoint", endpoint, "error", err)
				w.Header().Set("X-RateLimit-Error", "redis-error")
			}
			if !allowed {
				metrics.RateLimitBlocked.WithLabelValues(endpoint).Inc()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Close releases the Redis connection pool.
func (l *Limiter) Close() error {
	if !l.Enabled() {
		return nil
	}
	return l.client.Close()
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

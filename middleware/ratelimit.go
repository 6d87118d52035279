package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zuzu-app/authcore"
	"github.com/zuzu-app/authcore/internal/rate"
)

// RateLimitConfig is one per-client budget.
type RateLimitConfig struct {
	// Name separates the counters of different routes.
	Name   string
	Limit  int
	Window time.Duration
	// Prefix is the Redis key prefix. Defaults to "rl:http".
	Prefix string
	// TrustProxy makes the client IP come from X-Forwarded-For.
	TrustProxy bool
}

// RateLimit rejects a client's requests beyond cfg.Limit per cfg.Window with
// [authcore.ErrRateLimited]. Counter backend failures reject the request as
// an internal error.
func RateLimit(client redis.UniversalClient, cfg RateLimitConfig, logger *slog.Logger, onError ErrorHandler) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl:http"
	}
	onError = orDefault(onError)
	limiter := rate.New(client, cfg.Prefix)

	return func(next http.Handler) http.Handler {
		if client == nil || cfg.Limit <= 0 || cfg.Window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, cfg.TrustProxy)
			d, err := limiter.Hit(r.Context(), cfg.Name+":ip:"+ip, cfg.Limit, cfg.Window)
			if err != nil {
				logger.Error("rate limiter unavailable", "name", cfg.Name, "error", err)
				onError(w, r, authcore.ErrInternal.WithCause(err))
				return
			}
			if !d.Allowed {
				logger.Warn("rate limit exceeded",
					"name", cfg.Name,
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				onError(w, r, authcore.ErrRateLimited.WithRetryAfter(d.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

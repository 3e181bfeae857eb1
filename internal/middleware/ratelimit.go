package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hausmeister-app/hausmeister/internal/config"
	"github.com/hausmeister-app/hausmeister/internal/database"
	apierrors "github.com/hausmeister-app/hausmeister/internal/pkg/errors"
	"github.com/hausmeister-app/hausmeister/internal/pkg/response"
)

// RateLimit returns a rate limiting middleware using Redis, applied to the
// credential-bearing auth routes.
func RateLimit(redis *database.Redis, cfg config.RateLimitConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("ratelimit:ip:%s", getRealIP(r))

			ctx := r.Context()

			// Increment counter and get current value
			count, err := redis.IncrWithExpire(ctx, key, cfg.Window)
			if err != nil {
				// On Redis error, allow the request
				next.ServeHTTP(w, r)
				return
			}

			limit := cfg.Requests
			remaining := limit - int(count)
			if remaining < 0 {
				remaining = 0
			}

			resetTime := time.Now().Add(cfg.Window).Unix()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

			if int(count) > limit {
				w.Header().Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
				response.Error(w, apierrors.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getRealIP extracts the real client IP, considering proxies.
func getRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	return r.RemoteAddr
}

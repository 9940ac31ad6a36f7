package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/roompe/roompe-api/services/ratelimit"
	"github.com/roompe/roompe-api/utils"
	"go.uber.org/zap"
)

// RateLimit throttles requests per client address within scope. It must run
// after RealIP, which only honours forwarding headers from trusted proxies.
// Limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, scope string, limit int, window time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientIP(r)
			decision, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					zap.String("scope", scope),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(seconds(decision.RetryAfter(now))))

			if !decision.Allowed {
				h.Set("Retry-After", strconv.Itoa(seconds(decision.RetryAfter(now))))
				logger.Info("rate limit exceeded",
					zap.String("scope", scope),
					zap.String("client", clientIP(r)))
				_ = utils.WriteError(w, http.StatusTooManyRequests, "too many requests, try again later", map[string]interface{}{
					"retry_after_seconds": seconds(decision.RetryAfter(now)),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port RemoteAddr carries when RealIP left it alone.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

package middleware

import (
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/ferZyx/ip-cam-monitor/internal/ratelimit"
)

// RateLimit limits requests per client IP over a fixed window. Redis
// being down fails open: camera monitoring keeps working without the
// limiter, just louder.
func RateLimit(limiter *ratelimit.Limiter, cfg ratelimit.LimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			key := "rl:" + limiter.HashIP(ip)
			d, err := limiter.CheckRateLimit(r.Context(), key, cfg)
			if err != nil {
				log.Printf("[RateLimit] check failed, allowing: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

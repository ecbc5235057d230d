package httpx

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"school-store/internal/redisx"
)

// clientIP strips the port from RemoteAddr so all connections from one
// client share a counter. RealIP has already rewritten RemoteAddr to a bare
// IP when proxy headers are present, in which case the split fails and the
// value is used as is.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit is a fixed-window limiter over Redis: one counter per client IP
// per window. Redis being down fails open; throttling is not worth taking
// the store offline for.
func RateLimit(rdb *redis.Client, max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := time.Now().Unix() / int64(window.Seconds())
			key := fmt.Sprintf(redisx.KeyRateLimit, clientIP(r), bucket)

			n, err := rdb.Incr(r.Context(), key).Result()
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if n == 1 {
				_ = rdb.Expire(r.Context(), key, window).Err()
			}
			if n > int64(max) {
				writeError(w, http.StatusTooManyRequests, "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

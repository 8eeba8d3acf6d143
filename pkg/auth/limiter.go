package auth

import (
	"net/http"
	"strconv"
	"time"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/ratelimit"
	"snapfeed/pkg/telemetry"
	"snapfeed/pkg/utils"
)

// RateLimit gates a route per subject with the fixed-window limiter. A
// rejected request is backpressure, not failure: it answers 429 with
// remaining/reset metadata so clients can back off deliberately.
func RateLimit(limiter *ratelimit.Limiter, max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := SubjectFromContext(r.Context())
			if subject == "" {
				// subject middleware runs first; nothing to key on here
				next.ServeHTTP(w, r)
				return
			}
			res := limiter.Check(subject, r.URL.Path, max, window)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.UnixMilli(), 10))
			if !res.Allowed {
				telemetry.RateLimited.Inc()
				logger.Warn("rate_limited", "subject", subject, "path", r.URL.Path)
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
	"math"
	"net"
	"net/http"
	"strconv"

	apperrors "github.com/address-registry/internal/errors"
	"github.com/address-registry/internal/logging"
	"github.com/address-registry/internal/ratelimit"
	"github.com/gorilla/mux"
)

// clientKey identifies the caller by remote IP
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces rate limiting.
// Limiter failures are logged and the request is let through.
func RateLimitMiddleware(limiter ratelimit.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			allowed, retryAfter, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logging.FromContext(r.Context()).WithError(err).WithField("client", key).Warn("Rate limiter unavailable, allowing request")
			}

			if !allowed {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))

				rateErr := apperrors.NewRateLimitError()
				respondError(w, rateErr.StatusCode, rateErr.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

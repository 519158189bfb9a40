package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/aristath/quantfusion/internal/api"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimiter is a process-wide token bucket in front of the API.
type RateLimiter struct {
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewRateLimiter creates a limiter admitting rps requests per second with
// the given burst.
func NewRateLimiter(rps float64, burst int, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log.With().Str("component", "rate_limiter").Logger(),
	}
}

// Handler rejects requests with 429 once the bucket is empty
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			rl.log.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, api.ErrorEnvelope{Error: api.ErrorBody{
				Kind:    "rate_limited",
				Message: "rate limit exceeded",
			}})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfter is the number of whole seconds until one token is available.
func (rl *RateLimiter) retryAfter() int {
	limit := float64(rl.limiter.Limit())
	if limit <= 0 {
		return 60
	}
	return int(math.Max(1, math.Ceil(1/limit)))
}

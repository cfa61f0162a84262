package control

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"rtcsignal/internal/constants"
)

// RateLimiter wraps chi/httprate configuration for the Control API, which
// sits behind operator bearer auth rather than the client IP heuristics the
// teacher's public signup endpoints needed — keyed by the bearer token
// itself when present, falling back to remote IP. Grounded on the teacher's
// api/ratelimit.go.
type RateLimiter struct {
	requestLimit int
	windowLength time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{requestLimit: limit, windowLength: window}
}

func (l *RateLimiter) Middleware() func(http.Handler) http.Handler {
	retryAfter := retryAfterSeconds(l.windowLength)

	return httprate.Limit(
		l.requestLimit,
		l.windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if token, ok := BearerToken(r); ok {
				return token, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, constants.ErrCodeRateLimited, "rate limit exceeded")
		}),
	)
}

func retryAfterSeconds(window time.Duration) int {
	seconds := int(math.Ceil(window.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

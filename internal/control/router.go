package control

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rtcsignal/internal/auth"
)

// Router builds the Control API's HTTP handler: operator bearer auth and
// rate limiting in front of the four FID-addressed verbs, grounded on the
// teacher's api/router.go chi wiring.
func Router(h *Handler, ops *auth.OperatorService, rl *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequireOperator(ops))
	if rl != nil {
		r.Use(rl.Middleware())
	}

	r.Route("/control", func(r chi.Router) {
		r.Post("/*", h.Create)
		r.Put("/*", h.Apply)
		r.Delete("/*", h.Delete)
		r.Get("/*", h.Get)
	})

	return r
}

// DefaultTimeout is the callback HTTP client's default request timeout, the
// same value NewCallbackDispatcher falls back to for a non-positive timeout.
const DefaultTimeout = 5 * time.Second

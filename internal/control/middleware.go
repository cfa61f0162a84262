package control

import (
	"context"
	"net/http"

	"rtcsignal/internal/auth"
)

type ctxKey int

const operatorCtxKey ctxKey = iota

// BearerToken extracts the raw bearer token from a request, for rate-limit
// keying as well as auth.
func BearerToken(r *http.Request) (string, bool) {
	return auth.BearerFromRequest(r)
}

// RequireOperator validates the Authorization header against ops and stashes
// the operator name in the request context, rejecting with 401 on failure.
// Grounded on the teacher's session-cookie auth middleware, swapped for a
// stateless bearer check since the Control API has no per-user session.
func RequireOperator(ops *auth.OperatorService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}
			claims, err := ops.Validate(token)
			if err != nil {
				unauthorized(w, "invalid bearer token")
				return
			}
			ctx := context.WithValue(r.Context(), operatorCtxKey, claims.Operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func operatorFromContext(r *http.Request) string {
	if v, ok := r.Context().Value(operatorCtxKey).(string); ok {
		return v
	}
	return ""
}

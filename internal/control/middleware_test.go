package control

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rtcsignal/internal/auth"
)

func TestRequireOperatorRejectsMissingBearer(t *testing.T) {
	ops := auth.NewOperatorService("secret", time.Hour)
	called := false
	mw := RequireOperator(ops)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/control/r1", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("next handler must not run without a valid bearer token")
	}
}

func TestRequireOperatorRejectsInvalidToken(t *testing.T) {
	ops := auth.NewOperatorService("secret", time.Hour)
	mw := RequireOperator(ops)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/control/r1", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireOperatorAcceptsValidTokenAndStashesOperator(t *testing.T) {
	ops := auth.NewOperatorService("secret", time.Hour)
	token, err := ops.IssueToken("alice")
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	var seenOperator string
	mw := RequireOperator(ops)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenOperator = operatorFromContext(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/control/r1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 (default recorder status), got %d", rec.Code)
	}
	if seenOperator != "alice" {
		t.Fatalf("expected operator 'alice' in context, got %q", seenOperator)
	}
}

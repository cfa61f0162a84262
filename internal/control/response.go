// Package control implements the Control API adapter of spec.md §6: the 4
// verbs (Create, Apply, Delete, Get) addressed by dotted FID over HTTP,
// plus the on_join/on_leave callback dispatcher. Grounded on the teacher's
// internal/api package (chi router, JSON response envelope, httprate
// limiter, go-playground/validator payload checks), generalized from the
// teacher's REST-resource endpoints to the FID-addressed Element tree of
// spec.md §6.
package control

import (
	"encoding/json"
	"net/http"

	"rtcsignal/internal/constants"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, constants.ErrCodeInvalidRequest, message)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, constants.ErrCodeAuthFailed, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, constants.ErrCodeNotFound, message)
}

func conflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, constants.ErrCodeConflict, message)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, constants.ErrCodeInternal, "an internal error occurred")
}

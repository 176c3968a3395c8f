package middleware

import (
	"encoding/json"
	"net/http"
)

// errorResponse writes the default {"code": n, "message": s} payload
// with the matching HTTP status.
func errorResponse(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":    status,
		"message": err.Error(),
	})
}

// DefaultBadRequestHandler answers request validation failures with 400.
func DefaultBadRequestHandler(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, http.StatusBadRequest, err)
}

// DefaultServerErrorHandler answers response validation failures and
// handler exceptions with 500.
func DefaultServerErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, http.StatusInternalServerError, err)
}

// DefaultNotFoundHandler answers undeclared API routes with 404.
func DefaultNotFoundHandler(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, http.StatusNotFound, err)
}

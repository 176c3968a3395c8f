package middleware

import (
	"fmt"

	"github.com/swagward/swagward/swagger"
)

// RequestValidationError reports an incoming request that failed schema
// validation.
type RequestValidationError struct {
	Err error
}

func (e *RequestValidationError) Error() string {
	return "invalid request: " + swagger.IssueText(e.Err)
}

func (e *RequestValidationError) Unwrap() error { return e.Err }

// ResponseValidationError reports a handler response that failed schema
// validation, including a status code with no declared response schema.
type ResponseValidationError struct {
	Err error
}

func (e *ResponseValidationError) Error() string {
	return "invalid response: " + swagger.IssueText(e.Err)
}

func (e *ResponseValidationError) Unwrap() error { return e.Err }

// RouteNotFoundError reports a route under the API base path that the
// swagger document does not declare.
type RouteNotFoundError struct {
	Method string
	Rule   string
}

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("no swagger operation for %s %s", e.Method, e.Rule)
}

// panicError wraps a recovered non-error panic value so it can be
// handed to the exception handler.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}

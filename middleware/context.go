package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/swagward/swagward/swagger"
)

type contextKey string

const (
	operationContextKey contextKey = "swagward:operation"
	dataContextKey      contextKey = "swagward:data"
	failureContextKey   contextKey = "swagward:failure"
)

// RequestData is the unmarshalled request payload attached to the
// request context for the duration of handler execution.
type RequestData struct {
	// Body is the decoded JSON body: json.Number-typed when the plugin
	// uses models, plain float64 maps otherwise. Nil when the request
	// has no JSON body.
	Body any

	// RawBody is the body exactly as received.
	RawBody []byte

	// PathParams holds the values bound to path placeholders.
	PathParams map[string]string

	Query  url.Values
	Header http.Header
	Form   url.Values
}

// WithOperation stores the resolved operation in the request context.
func WithOperation(ctx context.Context, op *swagger.Operation) context.Context {
	return context.WithValue(ctx, operationContextKey, op)
}

// OperationFromContext retrieves the operation resolved for the current
// request, or nil outside the plugin pipeline.
func OperationFromContext(ctx context.Context) *swagger.Operation {
	if v := ctx.Value(operationContextKey); v != nil {
		return v.(*swagger.Operation)
	}
	return nil
}

// WithData stores the unmarshalled request data in the request context.
func WithData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, dataContextKey, data)
}

// DataFromContext retrieves the unmarshalled request data, or nil when
// request validation did not run.
func DataFromContext(ctx context.Context) *RequestData {
	if v := ctx.Value(dataContextKey); v != nil {
		return v.(*RequestData)
	}
	return nil
}

// failure carries an error from an Operation handler back to the
// intercept pipeline without writing anything to the client.
type failure struct {
	err error
}

func withFailure(ctx context.Context) (context.Context, *failure) {
	f := &failure{}
	return context.WithValue(ctx, failureContextKey, f), f
}

func failureFromContext(ctx context.Context) *failure {
	if v := ctx.Value(failureContextKey); v != nil {
		return v.(*failure)
	}
	return nil
}

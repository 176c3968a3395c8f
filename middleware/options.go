package middleware

import (
	"net/http"

	"github.com/swagward/swagward/swagger"
)

// ErrorHandler produces the HTTP response for a failed pipeline step.
// The err value is one of the types in errors.go for the three declared
// failure classes, or the recovered value for anything else.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Options configures a Plugin. All fields are fixed at construction;
// mutating an Options after passing it to New is not supported.
type Options struct {
	// ValidateSpec makes construction fail on a structurally invalid
	// swagger document.
	ValidateSpec bool

	// ValidateRequests and ValidateResponses toggle the two validation
	// phases independently.
	ValidateRequests  bool
	ValidateResponses bool

	// UseModels decodes request bodies with full numeric fidelity
	// (json.Number) instead of raw float64 maps.
	UseModels bool

	// Formats registers custom string formats with the validator.
	Formats map[string]swagger.FormatFunc

	// IncludeMissingProperties adds declared-but-absent body properties
	// to the unmarshalled request data as nil values.
	IncludeMissingProperties bool

	// DefaultTypeToObject treats schemas that declare properties but no
	// type as objects.
	DefaultTypeToObject bool

	// DereferenceRefs fully internalizes $refs at load time.
	DereferenceRefs bool

	// IgnoreUndefinedRoutes passes requests for rules the document does
	// not declare straight through instead of returning 404.
	IgnoreUndefinedRoutes bool

	// AutoJSONify serializes structured values returned by Operation
	// handlers to JSON and defaults the content type of JSON-shaped
	// response bodies to application/json.
	AutoJSONify bool

	// BasePath overrides the document's declared basePath.
	BasePath string

	// AdjustBasePath rewrites the basePath reported by the schema
	// endpoint to include the deployment mount prefix, taken from the
	// X-Forwarded-Prefix header.
	AdjustBasePath bool

	// ServeSchema exposes the raw document at SchemaSubpath under the
	// base path. Enabled implicitly when ServeUI is set.
	ServeSchema   bool
	SchemaSubpath string

	// ServeUI exposes the API explorer at UISubpath under the base
	// path. UIValidatorURL points the explorer at an external spec
	// validator; empty disables badge validation.
	ServeUI        bool
	UISubpath      string
	UIValidatorURL string

	// Handler overrides. Nil fields fall back to the defaults in
	// handlers.go.
	InvalidRequestHandler  ErrorHandler
	InvalidResponseHandler ErrorHandler
	NotFoundHandler        ErrorHandler
	ExceptionHandler       ErrorHandler
}

// DefaultSchemaSubpath and DefaultUISubpath are where the schema and
// explorer endpoints mount under the base path.
const (
	DefaultSchemaSubpath = "/swagger.json"
	DefaultUISubpath     = "/ui/"
)

// DefaultOptions returns the options used when New is given nil:
// everything validated, models and auto-serialization on, schema served,
// explorer UI off.
func DefaultOptions() *Options {
	return &Options{
		ValidateSpec:             true,
		ValidateRequests:         true,
		ValidateResponses:        true,
		UseModels:                true,
		IncludeMissingProperties: true,
		AutoJSONify:              true,
		AdjustBasePath:           true,
		ServeSchema:              true,
		SchemaSubpath:            DefaultSchemaSubpath,
		UISubpath:                DefaultUISubpath,
	}
}

// withDefaults returns a copy with unset sub-paths and handlers filled.
func (o *Options) withDefaults() *Options {
	out := *o
	if out.SchemaSubpath == "" {
		out.SchemaSubpath = DefaultSchemaSubpath
	}
	if out.UISubpath == "" {
		out.UISubpath = DefaultUISubpath
	}
	if out.ServeUI {
		out.ServeSchema = true
	}
	if out.InvalidRequestHandler == nil {
		out.InvalidRequestHandler = DefaultBadRequestHandler
	}
	if out.InvalidResponseHandler == nil {
		out.InvalidResponseHandler = DefaultServerErrorHandler
	}
	if out.NotFoundHandler == nil {
		out.NotFoundHandler = DefaultNotFoundHandler
	}
	if out.ExceptionHandler == nil {
		out.ExceptionHandler = DefaultServerErrorHandler
	}
	return &out
}

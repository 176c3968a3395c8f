// Package middleware attaches Swagger 2.0 schema validation to net/http
// routing. A Plugin wraps individual routes (Wrap) or a whole mux
// (Handler), resolves each request to its declared operation, validates
// the request before and the response after the downstream handler, and
// maps every failure to a structured JSON error response.
//
// Response validation runs strictly after the handler: side effects the
// handler committed cannot be undone, only the invalid payload is kept
// from the client.
package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/swagward/swagward/internal/templates"
	"github.com/swagward/swagward/swagger"
)

// Requests with bodies larger than this are rejected with 413 instead
// of being buffered for validation.
const maxRequestBodySize = 10 << 20

// Plugin validates requests and responses against a Swagger 2.0
// document. Construct once, share freely: the document and options are
// never mutated after New returns.
type Plugin struct {
	doc        *swagger.Document
	opts       *Options
	templates  *templates.Engine
	basePath   string
	schemaPath string
	uiPath     string
}

// New creates a plugin from a raw Swagger 2.0 document in YAML or JSON.
// A nil opts uses DefaultOptions. Construction fails on a malformed
// document, or on an invalid one when ValidateSpec is set.
func New(spec []byte, opts *Options) (*Plugin, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.withDefaults()
	doc, err := swagger.Load(spec, documentConfig(opts))
	if err != nil {
		return nil, err
	}
	return newPlugin(doc, opts)
}

// NewFromMap creates a plugin from an already-decoded definition.
func NewFromMap(def map[string]any, opts *Options) (*Plugin, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.withDefaults()
	doc, err := swagger.FromMap(def, documentConfig(opts))
	if err != nil {
		return nil, err
	}
	return newPlugin(doc, opts)
}

// NewFromFile creates a plugin from a Swagger 2.0 file.
func NewFromFile(path string, opts *Options) (*Plugin, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.withDefaults()
	doc, err := swagger.LoadFile(path, documentConfig(opts))
	if err != nil {
		return nil, err
	}
	return newPlugin(doc, opts)
}

func documentConfig(opts *Options) swagger.Config {
	return swagger.Config{
		ValidateSpec:        opts.ValidateSpec,
		BasePathOverride:    opts.BasePath,
		DefaultTypeToObject: opts.DefaultTypeToObject,
		DereferenceRefs:     opts.DereferenceRefs,
		Formats:             opts.Formats,
	}
}

func newPlugin(doc *swagger.Document, opts *Options) (*Plugin, error) {
	engine, err := newUIEngine()
	if err != nil {
		return nil, err
	}
	basePath := doc.BasePath()
	return &Plugin{
		doc:        doc,
		opts:       opts,
		templates:  engine,
		basePath:   basePath,
		schemaPath: swagger.JoinPath(basePath, opts.SchemaSubpath),
		uiPath:     swagger.JoinPath(basePath, opts.UISubpath),
	}, nil
}

// Document returns the loaded swagger document.
func (p *Plugin) Document() *swagger.Document { return p.doc }

// BasePath returns the URL prefix the declared API is mounted under.
func (p *Plugin) BasePath() string { return p.basePath }

// SchemaPath returns where the raw document is served.
func (p *Plugin) SchemaPath() string { return p.schemaPath }

// UIPath returns where the API explorer is served.
func (p *Plugin) UIPath() string { return p.uiPath }

// Wrap intercepts one route. The rule is the pattern as declared on the
// host router and may use /<name> or /<name:type> placeholder syntax;
// it is translated to swagger {name} syntax before operation lookup.
func (p *Plugin) Wrap(rule string, next http.Handler) http.Handler {
	swaggerRule := TranslateRule(rule)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.intercept(w, r, rule, p.doc.OperationForRule(r.Method, swaggerRule), next)
	})
}

// WrapFunc is Wrap for a bare handler function.
func (p *Plugin) WrapFunc(rule string, next http.HandlerFunc) http.Handler {
	return p.Wrap(rule, next)
}

// Handler intercepts every request of a whole handler tree. There is
// no declared rule here, so the concrete request path is resolved
// through the document's router: /pets/7 finds the operation declared
// at /pets/{id}.
func (p *Plugin) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.intercept(w, r, r.URL.Path, p.doc.OperationForRequest(r), next)
	})
}

// HandlerFunc is a value-returning route handler. The returned value is
// serialized for the client, honoring the AutoJSONify option; returning
// a *Response controls status and headers too. A returned error is
// routed to the plugin's exception handler.
type HandlerFunc func(r *http.Request) (any, error)

// Response lets a HandlerFunc set the status code and headers alongside
// its payload.
type Response struct {
	Status int
	Header http.Header
	Body   any
}

// Operation wraps a value-returning handler for one route.
func (p *Plugin) Operation(rule string, fn HandlerFunc) http.Handler {
	return p.Wrap(rule, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := fn(r)
		if err != nil {
			if f := failureFromContext(r.Context()); f != nil {
				f.err = err
				return
			}
			DefaultServerErrorHandler(w, r, err)
			return
		}
		p.writeResult(w, result)
	}))
}

// intercept runs the full pipeline: operation lookup, undefined-route
// policy, request validation, handler invocation, response validation,
// serialization, exception containment.
func (p *Plugin) intercept(w http.ResponseWriter, r *http.Request, rule string, op *swagger.Operation, next http.Handler) {
	defer func() {
		if v := recover(); v != nil {
			// net/http signals intentional aborts with this value;
			// it must keep propagating.
			if v == http.ErrAbortHandler {
				panic(v)
			}
			err, ok := v.(error)
			if !ok {
				err = &panicError{value: v}
			}
			p.opts.ExceptionHandler(w, r, err)
		}
	}()

	if op == nil {
		switch {
		case !strings.HasPrefix(rule, p.basePath) || p.opts.IgnoreUndefinedRoutes:
			next.ServeHTTP(w, r)
		case p.opts.ServeSchema && rule == p.schemaPath:
			next.ServeHTTP(w, r)
		case p.opts.ServeUI && strings.HasPrefix(rule, p.uiPath):
			next.ServeHTTP(w, r)
		default:
			p.opts.NotFoundHandler(w, r, &RouteNotFoundError{Method: r.Method, Rule: rule})
		}
		return
	}

	r = r.WithContext(WithOperation(r.Context(), op))

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				errorResponse(w, http.StatusRequestEntityTooLarge, fmt.Errorf("request body larger than %d bytes", maxErr.Limit))
				return
			}
			p.opts.InvalidRequestHandler(w, r, &RequestValidationError{Err: fmt.Errorf("reading request body: %w", err)})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	route, pathParams, routeErr := p.doc.Route(r)

	if p.opts.ValidateRequests {
		if routeErr != nil {
			p.opts.InvalidRequestHandler(w, r, &RequestValidationError{Err: routeErr})
			return
		}
		if err := p.doc.ValidateRequest(r, route, pathParams); err != nil {
			p.opts.InvalidRequestHandler(w, r, &RequestValidationError{Err: err})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		r = r.WithContext(WithData(r.Context(), p.buildRequestData(op, body, pathParams, r)))
	}

	ctx, fail := withFailure(r.Context())
	r = r.WithContext(ctx)

	rec := newResponseRecorder()
	next.ServeHTTP(rec, r)

	if fail.err != nil {
		p.opts.ExceptionHandler(w, r, fail.err)
		return
	}

	if p.opts.ValidateResponses {
		if routeErr != nil {
			p.opts.InvalidResponseHandler(w, r, &ResponseValidationError{Err: routeErr})
			return
		}
		header := rec.Header().Clone()
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", rec.contentType())
		}
		if err := p.doc.ValidateResponse(r, route, pathParams, rec.status, header, rec.body.Bytes()); err != nil {
			slog.Warn("swagger response validation failed",
				"method", r.Method, "rule", rule, "status", rec.status, "error", err)
			p.opts.InvalidResponseHandler(w, r, &ResponseValidationError{Err: err})
			return
		}
	}

	rec.flush(w, p.opts.AutoJSONify)
}

// buildRequestData unmarshals the validated request into the shape
// attached to the request context.
func (p *Plugin) buildRequestData(op *swagger.Operation, body []byte, pathParams map[string]string, r *http.Request) *RequestData {
	data := &RequestData{
		RawBody:    body,
		PathParams: pathParams,
		Query:      r.URL.Query(),
		Header:     r.Header,
	}

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		if form, err := url.ParseQuery(string(body)); err == nil {
			data.Form = form
		}
		return data
	}

	if len(body) > 0 && (ct == "" || strings.Contains(ct, "json")) {
		var decoded any
		dec := json.NewDecoder(bytes.NewReader(body))
		if p.opts.UseModels {
			dec.UseNumber()
		}
		if err := dec.Decode(&decoded); err == nil {
			data.Body = decoded
		}
	}

	if p.opts.IncludeMissingProperties {
		fillMissingProperties(data.Body, op.BodySchema())
	}

	return data
}

// fillMissingProperties adds declared-but-absent properties to the
// decoded body as nil values, descending into nested objects and array
// items. Absent properties are not descended into, which also bounds
// recursion on self-referential schemas.
func fillMissingProperties(value any, schema *openapi3.Schema) {
	if schema == nil {
		return
	}
	switch v := value.(type) {
	case map[string]any:
		for name, ref := range schema.Properties {
			if ref == nil {
				continue
			}
			if _, present := v[name]; !present {
				v[name] = nil
				continue
			}
			fillMissingProperties(v[name], ref.Value)
		}
	case []any:
		if schema.Items == nil {
			return
		}
		for _, item := range v {
			fillMissingProperties(item, schema.Items.Value)
		}
	}
}

func (p *Plugin) writeResult(w http.ResponseWriter, result any) {
	status := 0
	if resp, ok := result.(*Response); ok {
		for key, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		status = resp.Status
		result = resp.Body
	}

	switch body := result.(type) {
	case nil:
		if status != 0 {
			w.WriteHeader(status)
		}
	case []byte:
		writeRaw(w, status, body)
	case string:
		writeRaw(w, status, []byte(body))
	default:
		if p.opts.AutoJSONify {
			w.Header().Set("Content-Type", "application/json")
			if status != 0 {
				w.WriteHeader(status)
			}
			json.NewEncoder(w).Encode(body)
			return
		}
		writeRaw(w, status, []byte(fmt.Sprint(body)))
	}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	if status != 0 {
		w.WriteHeader(status)
	}
	w.Write(body)
}

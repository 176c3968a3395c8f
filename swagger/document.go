// Package swagger loads Swagger 2.0 documents and resolves requests,
// operations and response schemas against them. It wraps kin-openapi:
// the document is decoded with openapi2, converted once to an OpenAPI 3
// view for validation, and routed with the gorillamux router.
package swagger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	yaml "go.yaml.in/yaml/v4"
)

// FormatFunc validates a value of a user-defined string format.
type FormatFunc func(value string) error

// Config controls how a document is loaded. The zero value loads the
// document as-is without structural validation.
type Config struct {
	// ValidateSpec runs structural validation on the document at load
	// time and makes Load fail on an invalid spec.
	ValidateSpec bool

	// BasePathOverride replaces the document's declared basePath.
	BasePathOverride string

	// DefaultTypeToObject sets "type: object" on schemas that declare
	// properties but no type.
	DefaultTypeToObject bool

	// DereferenceRefs internalizes all external $refs so lookups never
	// leave the document.
	DereferenceRefs bool

	// Formats registers custom string formats with the validator.
	Formats map[string]FormatFunc
}

// Document is an immutable, loaded Swagger 2.0 specification. It is safe
// for concurrent use once constructed.
type Document struct {
	raw      map[string]any
	v2       *openapi2.T
	v3       *openapi3.T
	router   routers.Router
	basePath string
}

// Load parses a Swagger 2.0 document from YAML or JSON bytes.
func Load(data []byte, cfg Config) (*Document, error) {
	var def map[string]any
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing swagger document: %w", err)
	}
	return FromMap(def, cfg)
}

// LoadFile parses a Swagger 2.0 document from a file.
func LoadFile(path string, cfg Config) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading swagger document: %w", err)
	}
	return Load(data, cfg)
}

// FromMap builds a document from an already-decoded definition. The map
// is copied before any mutation.
func FromMap(def map[string]any, cfg Config) (*Document, error) {
	raw, ok := normalizeValue(def).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("swagger document is not an object")
	}

	if v, _ := raw["swagger"].(string); v != "2.0" {
		return nil, fmt.Errorf("unsupported swagger version: %q (only 2.0 supported)", v)
	}

	if cfg.BasePathOverride != "" {
		raw["basePath"] = cfg.BasePathOverride
	}
	if cfg.DefaultTypeToObject {
		defaultUntypedToObject(raw)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding swagger document: %w", err)
	}

	var v2 openapi2.T
	if err := json.Unmarshal(encoded, &v2); err != nil {
		return nil, fmt.Errorf("decoding swagger document: %w", err)
	}

	v3, err := openapi2conv.ToV3(&v2)
	if err != nil {
		return nil, fmt.Errorf("converting swagger document: %w", err)
	}

	basePath := strings.TrimSuffix(v2.BasePath, "/")
	if basePath == "" {
		basePath = "/"
	}

	// The converter only emits servers when host or schemes are set;
	// the router needs one to mount operations under the base path.
	if len(v3.Servers) == 0 && basePath != "/" {
		v3.Servers = openapi3.Servers{&openapi3.Server{URL: basePath}}
	}

	// The converter leaves Paths nil when the document declares none,
	// which structural validation rejects.
	if v3.Paths == nil {
		v3.Paths = openapi3.NewPaths()
	}

	ctx := context.Background()

	for name, fn := range cfg.Formats {
		openapi3.DefineStringFormatValidator(name, openapi3.NewCallbackValidator(func(value string) error {
			return fn(value)
		}))
	}

	if cfg.ValidateSpec {
		if err := v3.Validate(ctx); err != nil {
			return nil, fmt.Errorf("invalid swagger document: %w", err)
		}
	}

	if cfg.DereferenceRefs {
		v3.InternalizeRefs(ctx, nil)
	}

	router, err := gorillamux.NewRouter(v3)
	if err != nil {
		return nil, fmt.Errorf("building request router: %w", err)
	}

	return &Document{
		raw:      raw,
		v2:       &v2,
		v3:       v3,
		router:   router,
		basePath: basePath,
	}, nil
}

// BasePath returns the effective base path: the override if one was
// given, the document's declared basePath otherwise, or "/".
func (d *Document) BasePath() string {
	return d.basePath
}

// Info returns the document's info block.
func (d *Document) Info() openapi3.Info {
	return d.v2.Info
}

// Raw returns a copy of the document definition, suitable for serving.
func (d *Document) Raw() map[string]any {
	out := make(map[string]any, len(d.raw))
	for k, v := range d.raw {
		out[k] = v
	}
	return out
}

// RawWithBasePath returns a serving copy with the reported basePath
// joined onto the given deployment mount prefix.
func (d *Document) RawWithBasePath(prefix string) map[string]any {
	out := d.Raw()
	if _, ok := out["basePath"]; ok {
		out["basePath"] = JoinPath("/"+strings.Trim(prefix, "/")+"/", strings.TrimPrefix(d.basePath, "/"))
	}
	return out
}

// Route resolves a concrete request to its operation route and path
// parameters.
func (d *Document) Route(r *http.Request) (*routers.Route, map[string]string, error) {
	return d.router.FindRoute(r)
}

// JoinPath joins a URL path prefix and a sub-path with exactly one
// separating slash, preserving any trailing slash on the sub-path.
func JoinPath(base, sub string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimLeft(sub, "/")
}

// normalizeValue rewrites YAML-decoded values into JSON-compatible ones:
// map keys become strings, so numeric keys like response status codes
// survive the round trip.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// defaultUntypedToObject walks the definition and sets "type": "object"
// on any schema-shaped map that declares properties without a type.
func defaultUntypedToObject(v any) {
	switch val := v.(type) {
	case map[string]any:
		if _, hasProps := val["properties"].(map[string]any); hasProps {
			if _, hasType := val["type"]; !hasType {
				val["type"] = "object"
			}
		}
		for _, item := range val {
			defaultUntypedToObject(item)
		}
	case []any:
		for _, item := range val {
			defaultUntypedToObject(item)
		}
	}
}

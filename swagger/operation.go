package swagger

import (
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Operation is one (method, path) entry of the document.
type Operation struct {
	ID     string
	Method string
	// Path is the declared path template, without the base path.
	Path string

	def *openapi3.Operation
}

// Definition returns the converted OpenAPI view of the operation.
func (o *Operation) Definition() *openapi3.Operation {
	return o.def
}

// BodySchema returns the JSON body schema declared for the operation,
// or nil if it does not take a body.
func (o *Operation) BodySchema() *openapi3.Schema {
	if o.def.RequestBody == nil || o.def.RequestBody.Value == nil {
		return nil
	}
	media := o.def.RequestBody.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil {
		return nil
	}
	return media.Schema.Value
}

// OperationForRule looks up the operation declared for a route rule.
// The rule must already use swagger placeholder syntax and include the
// base path, e.g. "/api/pets/{id}". Returns nil when the document does
// not declare the operation.
func (d *Document) OperationForRule(method, rule string) *Operation {
	sub, ok := d.trimBasePath(rule)
	if !ok {
		return nil
	}

	item := d.v3.Paths.Find(sub)
	if item == nil {
		return nil
	}

	def := operationForMethod(item, method)
	if def == nil {
		return nil
	}

	return &Operation{
		ID:     def.OperationID,
		Method: method,
		Path:   sub,
		def:    def,
	}
}

// OperationForRequest resolves a concrete request to its declared
// operation through the request router, so GET /pets/7 finds the
// operation declared at /pets/{id}. Returns nil when no declared
// operation matches.
func (d *Document) OperationForRequest(r *http.Request) *Operation {
	route, _, err := d.router.FindRoute(r)
	if err != nil || route.Operation == nil {
		return nil
	}
	return &Operation{
		ID:     route.Operation.OperationID,
		Method: route.Method,
		Path:   route.Path,
		def:    route.Operation,
	}
}

// OperationCount returns the number of operations the document
// declares.
func (d *Document) OperationCount() int {
	count := 0
	for _, item := range d.v3.Paths.Map() {
		count += len(item.Operations())
	}
	return count
}

func (d *Document) trimBasePath(rule string) (string, bool) {
	if d.basePath == "/" {
		return rule, true
	}
	if !strings.HasPrefix(rule, d.basePath) {
		return "", false
	}
	sub := strings.TrimPrefix(rule, d.basePath)
	if sub == "" {
		sub = "/"
	}
	if !strings.HasPrefix(sub, "/") {
		// Rule like /apifoo with basePath /api is outside the surface.
		return "", false
	}
	return sub, true
}

func operationForMethod(item *openapi3.PathItem, method string) *openapi3.Operation {
	switch method {
	case http.MethodGet:
		return item.Get
	case http.MethodPost:
		return item.Post
	case http.MethodPut:
		return item.Put
	case http.MethodDelete:
		return item.Delete
	case http.MethodPatch:
		return item.Patch
	case http.MethodHead:
		return item.Head
	case http.MethodOptions:
		return item.Options
	}
	return nil
}

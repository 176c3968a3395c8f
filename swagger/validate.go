package swagger

import (
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
)

func validationOptions() *openapi3filter.Options {
	return &openapi3filter.Options{
		MultiError:            true,
		IncludeResponseStatus: true,
		// Security enforcement is the application's concern, not the
		// schema's; validation only checks shapes.
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}
}

// ValidateRequest validates an incoming request against the operation
// route it resolved to. The request body must be re-readable by the
// caller afterwards.
func (d *Document) ValidateRequest(r *http.Request, route *routers.Route, pathParams map[string]string) error {
	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options:    validationOptions(),
	}
	return openapi3filter.ValidateRequest(r.Context(), input)
}

// ValidateResponse validates the status, headers and body produced for
// a request. A status code with no declared response schema is an
// error.
func (d *Document) ValidateResponse(r *http.Request, route *routers.Route, pathParams map[string]string, status int, header http.Header, body []byte) error {
	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options:    validationOptions(),
		},
		Status:  status,
		Header:  header,
		Options: validationOptions(),
	}
	if len(body) > 0 {
		input.SetBodyBytes(body)
	}
	return openapi3filter.ValidateResponse(r.Context(), input)
}

// Issue is one flattened validation failure.
type Issue struct {
	Location string
	Field    string
	Message  string
}

func (i Issue) String() string {
	var sb strings.Builder
	if i.Location != "" {
		sb.WriteString(i.Location)
		if i.Field != "" {
			sb.WriteString(" ")
			sb.WriteString(i.Field)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(i.Message)
	return sb.String()
}

// Issues flattens kin-openapi's nested error values into a list of
// locatable failures. A nil error yields nil.
func Issues(err error) []Issue {
	if err == nil {
		return nil
	}
	var out []Issue
	collectIssues(err, &out)
	return out
}

// IssueText renders all failures in an error as a single line.
func IssueText(err error) string {
	issues := Issues(err)
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

func collectIssues(err error, out *[]Issue) {
	switch e := err.(type) {
	case openapi3.MultiError:
		for _, sub := range e {
			collectIssues(sub, out)
		}

	case *openapi3filter.RequestError:
		issue := Issue{Location: "request", Message: e.Error()}
		if e.Parameter != nil {
			issue.Location = e.Parameter.In
			issue.Field = e.Parameter.Name
		} else if e.RequestBody != nil {
			issue.Location = "body"
		}
		applySchemaDetail(e.Err, &issue)
		*out = append(*out, issue)

	case *openapi3filter.ResponseError:
		issue := Issue{Location: "response", Message: e.Error()}
		applySchemaDetail(e.Err, &issue)
		*out = append(*out, issue)

	case *openapi3.SchemaError:
		*out = append(*out, Issue{
			Field:   jsonPointerPath(e.JSONPointer()),
			Message: e.Reason,
		})

	default:
		*out = append(*out, Issue{Message: err.Error()})
	}
}

func applySchemaDetail(err error, issue *Issue) {
	if err == nil {
		return
	}
	issue.Message = err.Error()
	if schemaErr, ok := err.(*openapi3.SchemaError); ok {
		if p := jsonPointerPath(schemaErr.JSONPointer()); p != "" {
			issue.Field = p
		}
		issue.Message = schemaErr.Reason
	}
}

// jsonPointerPath renders pointer parts like ["pet", "tags", "0"] as
// pet.tags[0].
func jsonPointerPath(parts []string) string {
	var sb strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if isDigits(part) {
			sb.WriteString("[")
			sb.WriteString(part)
			sb.WriteString("]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(".")
		}
		sb.WriteString(part)
	}
	return sb.String()
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const petSpec = `
swagger: "2.0"
info:
  title: Pet Store
  version: "1.0"
basePath: /api
consumes:
  - application/json
produces:
  - application/json
paths:
  /pets:
    get:
      operationId: listPets
      parameters:
        - name: limit
          in: query
          type: integer
      responses:
        "200":
          description: OK
          schema:
            type: array
            items:
              $ref: '#/definitions/Pet'
    post:
      operationId: createPet
      parameters:
        - name: pet
          in: body
          required: true
          schema:
            $ref: '#/definitions/NewPet'
      responses:
        "201":
          description: Created
          schema:
            $ref: '#/definitions/Pet'
  /pets/{id}:
    get:
      operationId: getPet
      parameters:
        - name: id
          in: path
          required: true
          type: integer
      responses:
        "200":
          description: OK
          schema:
            $ref: '#/definitions/Pet'
definitions:
  Pet:
    type: object
    required:
      - id
      - name
    properties:
      id:
        type: integer
      name:
        type: string
  NewPet:
    type: object
    required:
      - name
    properties:
      name:
        type: string
      age:
        type: integer
      owner:
        $ref: '#/definitions/Owner'
  Owner:
    type: object
    properties:
      name:
        type: string
      phone:
        type: string
`

func newTestPlugin(t *testing.T, opts *Options) *Plugin {
	t.Helper()
	p, err := New([]byte(petSpec), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestNew(t *testing.T) {
	p := newTestPlugin(t, nil)
	if p.BasePath() != "/api" {
		t.Errorf("BasePath() = %q, want /api", p.BasePath())
	}
	if p.SchemaPath() != "/api/swagger.json" {
		t.Errorf("SchemaPath() = %q, want /api/swagger.json", p.SchemaPath())
	}
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "petstore.yaml")
	if err := os.WriteFile(path, []byte(petSpec), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := NewFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	if p.BasePath() != "/api" {
		t.Errorf("BasePath() = %q, want /api", p.BasePath())
	}

	if _, err := NewFromFile(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("NewFromFile() accepted a missing file")
	}
}

func TestNew_UnsupportedVersion(t *testing.T) {
	_, err := New([]byte(`{"swagger": "3.0", "info": {"title": "x", "version": "1"}, "paths": {}}`), nil)
	if err == nil {
		t.Fatal("New() accepted a non-2.0 document")
	}
	if !strings.Contains(err.Error(), "unsupported swagger version") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWrap_ValidRoundTrip(t *testing.T) {
	p := newTestPlugin(t, nil)

	handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 1, "name": "rex"}]`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"rex"`) {
		t.Errorf("handler payload not delivered: %s", rec.Body.String())
	}
}

func TestWrap_InvalidRequest(t *testing.T) {
	p := newTestPlugin(t, nil)

	invoked := false
	handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invoked = true
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/pets", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if invoked {
		t.Error("handler ran despite an invalid request")
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error response is not JSON: %v", err)
	}
	if body["code"] != float64(400) {
		t.Errorf("expected code 400 in error body, got %v", body["code"])
	}
	if body["message"] == "" || body["message"] == nil {
		t.Error("expected a message in the error body")
	}
}

func TestWrap_OversizedBody(t *testing.T) {
	p := newTestPlugin(t, nil)

	invoked := false
	handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invoked = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/pets", bytes.NewReader(make([]byte, maxRequestBodySize+1)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", rec.Code)
	}
	if invoked {
		t.Error("handler ran despite an oversized body")
	}
}

func TestWrap_InvalidQueryParameter(t *testing.T) {
	p := newTestPlugin(t, nil)

	handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/pets?limit=lots", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWrap_InvalidResponse(t *testing.T) {
	p := newTestPlugin(t, nil)

	handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"oops": true}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "oops") {
		t.Error("invalid handler payload leaked to the client")
	}
}

func TestWrap_InvalidResponseValidationOff(t *testing.T) {
	opts := DefaultOptions()
	opts.ValidateResponses = false
	p := newTestPlugin(t, opts)

	handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"oops": true}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "oops") {
		t.Error("expected the raw payload with response validation off")
	}
}

func TestWrap_UndefinedRoute(t *testing.T) {
	t.Run("under base path", func(t *testing.T) {
		p := newTestPlugin(t, nil)
		handler := p.Wrap("/api/unknown", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler ran for an undeclared route")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("outside base path", func(t *testing.T) {
		p := newTestPlugin(t, nil)
		handler := p.Wrap("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected passthrough 204, got %d", rec.Code)
		}
	})

	t.Run("ignored", func(t *testing.T) {
		opts := DefaultOptions()
		opts.IgnoreUndefinedRoutes = true
		p := newTestPlugin(t, opts)
		handler := p.Wrap("/api/unknown", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected passthrough 204, got %d", rec.Code)
		}
	})

	t.Run("declared path, undeclared method", func(t *testing.T) {
		p := newTestPlugin(t, nil)
		handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler ran for an undeclared method")
		}))

		req := httptest.NewRequest(http.MethodDelete, "/api/pets", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestWrap_PlaceholderRules(t *testing.T) {
	p := newTestPlugin(t, nil)

	handler := p.Wrap("/api/pets/<id:int>", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := DataFromContext(r.Context())
		if data == nil {
			t.Fatal("expected request data in context")
		}
		if data.PathParams["id"] != "7" {
			t.Errorf("PathParams[id] = %q, want 7", data.PathParams["id"])
		}
		w.Write([]byte(`{"id": 7, "name": "rex"}`))
	}))

	t.Run("valid path parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/pets/7", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("non-integer path parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/pets/abc", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestHandler_WholeMux(t *testing.T) {
	p := newTestPlugin(t, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("GET /api/pets/{id}", func(w http.ResponseWriter, r *http.Request) {
		op := OperationFromContext(r.Context())
		if op == nil || op.ID != "getPet" {
			t.Errorf("operation in context = %+v, want getPet", op)
		}
		w.Write([]byte(`{"id": 7, "name": "rex"}`))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := p.Handler(mux)

	t.Run("declared operation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("parameterized operation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/pets/7", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"rex"`) {
			t.Errorf("handler payload not delivered: %s", rec.Body.String())
		}
	})

	t.Run("undeclared path under base path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("outside base path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rec.Code)
		}
	})
}

func TestOperation(t *testing.T) {
	p := newTestPlugin(t, nil)

	t.Run("map payload is JSON encoded", func(t *testing.T) {
		handler := p.Operation("/api/pets/<id>", func(r *http.Request) (any, error) {
			return map[string]any{"id": 7, "name": "rex"}, nil
		})

		req := httptest.NewRequest(http.MethodGet, "/api/pets/7", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json content type, got %q", ct)
		}
		var pet map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &pet); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if pet["name"] != "rex" {
			t.Errorf("payload = %v", pet)
		}
	})

	t.Run("response value sets status and headers", func(t *testing.T) {
		handler := p.Operation("/api/pets", func(r *http.Request) (any, error) {
			return &Response{
				Status: http.StatusCreated,
				Header: http.Header{"X-Pet": []string{"rex"}},
				Body:   map[string]any{"id": 7, "name": "rex"},
			}, nil
		})

		req := httptest.NewRequest(http.MethodPost, "/api/pets", strings.NewReader(`{"name": "rex"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if rec.Header().Get("X-Pet") != "rex" {
			t.Error("custom header not delivered")
		}
	})

	t.Run("returned error reaches the exception handler", func(t *testing.T) {
		handler := p.Operation("/api/pets", func(r *http.Request) (any, error) {
			return nil, errors.New("storage offline")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "storage offline") {
			t.Errorf("expected the handler error in the body, got %s", rec.Body.String())
		}
	})
}

func TestRequestData(t *testing.T) {
	t.Run("models decode with numeric fidelity", func(t *testing.T) {
		p := newTestPlugin(t, nil)

		var got *RequestData
		handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = DataFromContext(r.Context())
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": 1, "name": "rex"}`))
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/pets", strings.NewReader(`{"name": "rex"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if got == nil {
			t.Fatal("expected request data in context")
		}
		body, ok := got.Body.(map[string]any)
		if !ok {
			t.Fatalf("Body = %T, want map", got.Body)
		}
		if body["name"] != "rex" {
			t.Errorf("body[name] = %v", body["name"])
		}
		if value, present := body["age"]; !present || value != nil {
			t.Errorf("expected declared-but-absent age property as nil, got %v (present=%v)", value, present)
		}
		if string(got.RawBody) != `{"name": "rex"}` {
			t.Errorf("RawBody = %s", got.RawBody)
		}
	})

	t.Run("nested objects gain declared properties", func(t *testing.T) {
		p := newTestPlugin(t, nil)

		var got *RequestData
		handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = DataFromContext(r.Context())
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": 1, "name": "rex"}`))
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/pets", strings.NewReader(`{"name": "rex", "owner": {"name": "jo"}}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if got == nil {
			t.Fatal("expected request data in context")
		}
		owner, ok := got.Body.(map[string]any)["owner"].(map[string]any)
		if !ok {
			t.Fatalf("owner = %T, want map", got.Body.(map[string]any)["owner"])
		}
		if value, present := owner["phone"]; !present || value != nil {
			t.Errorf("expected declared-but-absent phone property as nil, got %v (present=%v)", value, present)
		}
	})

	t.Run("body stays readable downstream", func(t *testing.T) {
		p := newTestPlugin(t, nil)

		handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var pet struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&pet); err != nil {
				t.Errorf("decoding body downstream: %v", err)
			}
			if pet.Name != "rex" {
				t.Errorf("name = %q", pet.Name)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": 1, "name": "rex"}`))
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/pets", strings.NewReader(`{"name": "rex"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("operation is resolvable from context", func(t *testing.T) {
		p := newTestPlugin(t, nil)

		handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := OperationFromContext(r.Context())
			if op == nil {
				t.Fatal("expected operation in context")
			}
			if op.ID != "listPets" {
				t.Errorf("operation ID = %q, want listPets", op.ID)
			}
			w.Write([]byte(`[]`))
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}

func TestPanicContainment(t *testing.T) {
	t.Run("panic becomes 500", func(t *testing.T) {
		p := newTestPlugin(t, nil)
		handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "boom") {
			t.Errorf("expected panic value in the body, got %s", rec.Body.String())
		}
	})

	t.Run("ErrAbortHandler keeps propagating", func(t *testing.T) {
		p := newTestPlugin(t, nil)
		handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		defer func() {
			if v := recover(); v != http.ErrAbortHandler {
				t.Errorf("recovered %v, want http.ErrAbortHandler", v)
			}
		}()

		req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		t.Error("expected the abort panic to propagate")
	})
}

func TestCustomHandlers(t *testing.T) {
	opts := DefaultOptions()

	var requestErr error
	opts.InvalidRequestHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		requestErr = err
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	var notFoundErr error
	opts.NotFoundHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		notFoundErr = err
		w.WriteHeader(http.StatusGone)
	}

	p := newTestPlugin(t, opts)

	t.Run("invalid request", func(t *testing.T) {
		handler := p.Wrap("/api/pets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodPost, "/api/pets", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rec.Code)
		}
		var verr *RequestValidationError
		if !errors.As(requestErr, &verr) {
			t.Errorf("handler error = %T, want *RequestValidationError", requestErr)
		}
	})

	t.Run("route not found", func(t *testing.T) {
		handler := p.Wrap("/api/unknown", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusGone {
			t.Errorf("expected status 410, got %d", rec.Code)
		}
		var nferr *RouteNotFoundError
		if !errors.As(notFoundErr, &nferr) {
			t.Fatalf("handler error = %T, want *RouteNotFoundError", notFoundErr)
		}
		if nferr.Rule != "/api/unknown" {
			t.Errorf("Rule = %q", nferr.Rule)
		}
	})
}

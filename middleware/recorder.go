package middleware

import (
	"bytes"
	"net/http"
	"unicode"
)

// responseRecorder buffers everything the downstream handler produces
// so the response can be validated, and possibly replaced, before any
// byte reaches the client.
type responseRecorder struct {
	status      int
	wroteHeader bool
	header      http.Header
	body        bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{
		status: http.StatusOK,
		header: make(http.Header),
	}
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(b)
}

// contentType returns the recorded content type, defaulting to JSON the
// way the validation step treats untyped bodies.
func (r *responseRecorder) contentType() string {
	if ct := r.header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/json"
}

// flush replays the recorded response onto the real writer. When
// autoJSON is set and the handler never chose a content type, bodies
// that look like JSON documents are labelled application/json.
func (r *responseRecorder) flush(w http.ResponseWriter, autoJSON bool) {
	if autoJSON && r.header.Get("Content-Type") == "" && looksLikeJSON(r.body.Bytes()) {
		r.header.Set("Content-Type", "application/json")
	}
	for key, values := range r.header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(r.status)
	if r.body.Len() > 0 {
		w.Write(r.body.Bytes())
	}
}

func looksLikeJSON(body []byte) bool {
	for _, b := range body {
		if unicode.IsSpace(rune(b)) {
			continue
		}
		return b == '{' || b == '['
	}
	return false
}

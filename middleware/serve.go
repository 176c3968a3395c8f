package middleware

import (
	"embed"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/swagward/swagward/internal/templates"
	"github.com/swagward/swagward/swagger"
)

//go:embed ui
var uiFS embed.FS

// Registrar is the router surface the plugin registers its schema and
// explorer endpoints on. *http.ServeMux satisfies it; patterns use the
// "METHOD /path" form.
type Registrar interface {
	Handle(pattern string, handler http.Handler)
}

// Register installs the schema and explorer UI endpoints enabled by the
// options. Both routes pass through the plugin's own intercept, relying
// on the undefined-route carve-outs to let them through.
func (p *Plugin) Register(mux Registrar) {
	if p.opts.ServeSchema {
		mux.Handle("GET "+p.schemaPath, p.Wrap(p.schemaPath, http.HandlerFunc(p.serveSchema)))
	}
	if p.opts.ServeUI {
		mux.Handle("GET "+p.uiPath+"{$}", p.Wrap(p.uiPath, http.HandlerFunc(p.serveUIIndex)))
		mux.Handle("GET "+p.uiPath, p.Wrap(p.uiPath, p.serveUIAssets()))
	}
}

// serveSchema returns the raw swagger document. When basePath
// adjustment is on and a reverse proxy reports a mount prefix, the
// served basePath reflects the actual deployment location.
func (p *Plugin) serveSchema(w http.ResponseWriter, r *http.Request) {
	def := p.doc.Raw()
	if p.opts.AdjustBasePath {
		if prefix := r.Header.Get("X-Forwarded-Prefix"); prefix != "" {
			def = p.doc.RawWithBasePath(prefix)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(def)
}

type uiIndexData struct {
	Title             string
	SpecURL           string
	ValidatorURL      any
	OAuth2RedirectURL string
}

func (p *Plugin) serveUIIndex(w http.ResponseWriter, r *http.Request) {
	data := uiIndexData{
		Title:             p.doc.Info().Title,
		SpecURL:           p.schemaPath,
		OAuth2RedirectURL: swagger.JoinPath(p.uiPath, "oauth2-redirect.html"),
	}
	if p.opts.UIValidatorURL != "" {
		data.ValidatorURL = p.opts.UIValidatorURL
	}

	page, err := p.templates.Execute("index.html.tmpl", data)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, page)
}

// serveUIAssets serves the bundled static files under the UI sub-path.
func (p *Plugin) serveUIAssets() http.Handler {
	assets, err := fs.Sub(uiFS, "ui")
	if err != nil {
		panic(err)
	}
	files := http.StripPrefix(p.uiPath, http.FileServerFS(assets))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".tmpl") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func newUIEngine() (*templates.Engine, error) {
	return templates.NewEngine(uiFS, "ui")
}

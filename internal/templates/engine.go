// Package templates renders the embedded HTML pages served by the
// explorer UI endpoints.
package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
)

type Engine struct {
	templates *template.Template
}

// NewEngine parses every .tmpl file in the given filesystem. Template
// names are the file paths with the root directory stripped.
func NewEngine(fsys fs.FS, root string) (*Engine, error) {
	e := &Engine{templates: template.New("")}

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("reading template %s: %w", path, err)
		}
		name := strings.TrimPrefix(path, root+"/")
		if _, err := e.templates.New(name).Parse(string(content)); err != nil {
			return fmt.Errorf("parsing template %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	return e, nil
}

func (e *Engine) Execute(name string, data any) (string, error) {
	tmpl := e.templates.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}

	return buf.String(), nil
}

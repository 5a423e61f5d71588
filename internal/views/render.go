// Package views renders the trial form page from embedded templates.
package views

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
)

//go:embed templates
var viewsFS embed.FS

// Templates holds the parsed page templates.
type Templates struct {
	tmpl *template.Template
}

// loadTemplatesFromFS parses templates from dir in fsys. Tests use it to
// simulate load failures.
func loadTemplatesFromFS(fsys fs.FS, dir string) (*Templates, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return nil, err
	}
	return &Templates{tmpl: tmpl}, nil
}

// LoadTemplates parses the embedded templates. Call during startup; if it
// returns an error, do not start the server.
func LoadTemplates() (*Templates, error) {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// RenderPage writes the full form page.
func (t *Templates) RenderPage(w io.Writer, page Page) error {
	if t == nil || t.tmpl == nil {
		return errors.New("page template not loaded: call views.LoadTemplates during startup")
	}
	return t.tmpl.ExecuteTemplate(w, "index.html", page)
}

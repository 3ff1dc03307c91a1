// Package web renders the browser-facing pages of "Login with XCROL": the
// consent screen, the sign-in prompt and the error page.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Template names
const (
	ConsentTemplate = "consent.html"
	ErrorTemplate   = "error.html"
	SignInTemplate  = "signin.html"
)

// Templates holds the parsed HTML templates for the web interface.
type Templates struct {
	templates *template.Template
}

var funcs = template.FuncMap{
	"initial": func(name string) string {
		if name == "" {
			return "?"
		}
		return strings.ToUpper(name[:1])
	},
}

// NewTemplates creates a new Templates instance by parsing all embedded templates.
func NewTemplates() (*Templates, error) {
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Templates{templates: tmpl}, nil
}

// Render renders a named template with the given status. Output is buffered
// so a failing template never sends a partial page.
func (t *Templates) Render(w http.ResponseWriter, status int, name string, data interface{}) error {
	tmpl := t.templates.Lookup(name)
	if tmpl == nil {
		return fmt.Errorf("template %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template %q: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' https: data:; style-src 'self' 'unsafe-inline'")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
)

//go:embed templates/*.html
var embedded embed.FS

// TemplateRenderer executes the named page templates.
type TemplateRenderer struct {
	templates *template.Template
}

// NewTemplateRenderer parses the embedded templates, or the *.html files in
// dir when dir is set.
func NewTemplateRenderer(dir string) (*TemplateRenderer, error) {
	var source fs.FS = embedded
	pattern := "templates/*.html"
	if dir != "" {
		source = os.DirFS(dir)
		pattern = "*.html"
	}

	templates, err := template.New("pages").ParseFS(source, pattern)
	if err != nil {
		return nil, fmt.Errorf("could not parse templates: %w", err)
	}

	for _, name := range []string{TemplateUnsecure, TemplateSecure} {
		if templates.Lookup(name) == nil {
			return nil, fmt.Errorf("template %q is not defined", name)
		}
	}

	return &TemplateRenderer{templates: templates}, nil
}

// Render writes the template name executed with values to w.
func (r *TemplateRenderer) Render(w io.Writer, name string, values any) error {
	if r.templates.Lookup(name) == nil {
		return fmt.Errorf("unknown template %q", name)
	}
	return r.templates.ExecuteTemplate(w, name, values)
}

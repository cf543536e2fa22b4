package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
)

//go:embed templates
var TemplatesFS embed.FS

//go:embed static
var StaticFS embed.FS

const baseLayout = "templates/layouts/base.html"

// Pages holds one template set per page. Each set is the base layout with
// the page's blocks parsed on top; sharing one set would let the last page's
// "content" block win for every page.
type Pages map[string]*template.Template

// Render executes the named page ("app.html") into w.
func (p Pages) Render(w io.Writer, name string, data interface{}) error {
	t, ok := p[name]
	if !ok {
		return fmt.Errorf("page %q not found", name)
	}
	return t.ExecuteTemplate(w, "base", data)
}

// LoadTemplates parses every page under templates/pages.
func LoadTemplates() (Pages, error) {
	return loadTemplates(TemplatesFS)
}

func loadTemplates(fsys fs.FS) (Pages, error) {
	base, err := fs.ReadFile(fsys, baseLayout)
	if err != nil {
		return nil, err
	}

	files, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}

	pages := make(Pages, len(files))
	for _, file := range files {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}

		t, err := template.New("base").Parse(string(base))
		if err != nil {
			return nil, fmt.Errorf("parsing layout: %w", err)
		}
		if _, err := t.Parse(string(content)); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
		pages[path.Base(file)] = t
	}

	return pages, nil
}

// GetStaticFS returns the static assets rooted at static/.
func GetStaticFS() (fs.FS, error) {
	return fs.Sub(StaticFS, "static")
}

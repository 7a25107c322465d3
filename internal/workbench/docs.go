// ABOUTME: Serves the embedded developer setup guide rendered from markdown
// ABOUTME: Rendered once with goldmark and cached for the life of the process

package workbench

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed docs/setup.md
var setupMarkdown []byte

var docsPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
pre { background: #f4f4f4; padding: 0.75rem; overflow-x: auto; }
code { font-size: 0.9em; }
</style>
</head>
<body>
{{.Content}}
</body>
</html>
`))

var (
	docsOnce sync.Once
	docsHTML []byte
	docsErr  error
)

// SetupGuide returns the raw developer setup markdown.
func SetupGuide() []byte {
	return setupMarkdown
}

// renderDocs converts the setup guide to a full HTML page.
func renderDocs() ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var body bytes.Buffer
	if err := md.Convert(setupMarkdown, &body); err != nil {
		return nil, err
	}

	var page bytes.Buffer
	err := docsPage.Execute(&page, struct {
		Title   string
		Content template.HTML
	}{
		Title:   "coven-workbench developer setup",
		Content: template.HTML(body.String()),
	})
	if err != nil {
		return nil, err
	}
	return page.Bytes(), nil
}

// handleDocs serves the rendered setup guide.
func (s *Service) handleDocs(w http.ResponseWriter, r *http.Request) {
	docsOnce.Do(func() {
		docsHTML, docsErr = renderDocs()
	})
	if docsErr != nil {
		s.logger.Error("failed to render docs", "error", docsErr)
		http.Error(w, "failed to render docs", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(docsHTML)
}

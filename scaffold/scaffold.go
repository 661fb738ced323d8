// Package scaffold holds the embedded file templates foundry writes into
// generated projects: minimal framework entry files so a freshly installed
// dev server has something to render, and the degraded-state page served by
// the static fallback.
package scaffold

import (
	"bytes"
	_ "embed"
	"html/template"
)

//go:embed templates/fallback.html
var fallbackPage string

//go:embed templates/index.html
var indexHTML string

//go:embed templates/main.jsx
var reactMain string

//go:embed templates/app.jsx
var reactApp string

//go:embed templates/main.js
var vanillaMain string

//go:embed templates/vue-main.js
var vueMain string

//go:embed templates/app.vue
var vueApp string

var fallbackTmpl = template.Must(template.New("fallback").Parse(fallbackPage))

// FallbackPage renders the degraded-state page shown when the dev server
// could not be started. The diagnostic tail is HTML-escaped.
func FallbackPage(diagnostic string) []byte {
	var buf bytes.Buffer
	if err := fallbackTmpl.Execute(&buf, struct{ Diagnostic string }{diagnostic}); err != nil {
		// Template and data are static; execution cannot fail in practice.
		return []byte(fallbackPage)
	}
	return buf.Bytes()
}

// Entries returns the minimal entry files for a detected framework, keyed
// by project-relative path. Only files absent from the project should be
// written; callers check existence first.
func Entries(framework string) map[string]string {
	switch framework {
	case "react":
		return map[string]string{
			"index.html":   indexHTML,
			"src/main.jsx": reactMain,
			"src/App.jsx":  reactApp,
		}
	case "vue":
		return map[string]string{
			"index.html":  indexHTML,
			"src/main.js": vueMain,
			"src/App.vue": vueApp,
		}
	default:
		return map[string]string{
			"index.html":  indexHTML,
			"src/main.js": vanillaMain,
		}
	}
}

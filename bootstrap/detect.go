package bootstrap

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pithecene-io/foundry/sandbox"
	"github.com/pithecene-io/foundry/scaffold"
	"github.com/pithecene-io/foundry/types"
)

// Framework identifies the detected project framework for dev-command
// computation and peer-dependency injection.
type Framework string

// Detected frameworks. Vanilla covers anything without a recognized
// framework dependency; vite is still assumed as the build tool.
const (
	FrameworkReact   Framework = "react"
	FrameworkVue     Framework = "vue"
	FrameworkSvelte  Framework = "svelte"
	FrameworkAstro   Framework = "astro"
	FrameworkNext    Framework = "next"
	FrameworkVanilla Framework = "vanilla"
)

// DetectFramework inspects manifest dependencies.
// Next wins over React since Next projects depend on both.
func DetectFramework(m *types.PackageManifest) Framework {
	has := func(name string) bool {
		if _, ok := m.Dependencies[name]; ok {
			return true
		}
		_, ok := m.DevDependencies[name]
		return ok
	}
	switch {
	case has("next"):
		return FrameworkNext
	case has("astro"):
		return FrameworkAstro
	case has("svelte"):
		return FrameworkSvelte
	case has("vue"):
		return FrameworkVue
	case has("react"):
		return FrameworkReact
	default:
		return FrameworkVanilla
	}
}

// devScriptFor computes the framework dev-start script bound to all
// interfaces on the selected port.
func devScriptFor(fw Framework, port int) string {
	switch fw {
	case FrameworkNext:
		return fmt.Sprintf("next dev -H 0.0.0.0 -p %d", port)
	case FrameworkAstro:
		return fmt.Sprintf("astro dev --host 0.0.0.0 --port %d", port)
	default:
		// Vite serves react, vue, svelte and vanilla projects alike.
		return fmt.Sprintf("vite --host 0.0.0.0 --port %d", port)
	}
}

// normalizeDevScript rewrites the manifest dev script to the framework
// command with explicit host and port, so the spawned server is reachable
// from outside the sandbox. Returns true if the manifest changed.
func normalizeDevScript(m *types.PackageManifest, fw Framework, port int) bool {
	want := devScriptFor(fw, port)
	if m.Scripts == nil {
		m.Scripts = map[string]string{}
	}
	current := m.Scripts["dev"]
	if current == want {
		return false
	}
	// An explicit custom script that already binds a host is respected.
	if current != "" && strings.Contains(current, "--host") {
		return false
	}
	m.Scripts["dev"] = want
	return true
}

// ensureScaffolding writes the minimal entry files for the framework so
// the dev server has something to render. Existing files are never
// overwritten.
func ensureScaffolding(adapter sandbox.Adapter, root string, fw Framework) error {
	for rel, content := range scaffold.Entries(string(fw)) {
		p := projectPath(root, rel)
		if adapter.Exists(p) {
			continue
		}
		if err := adapter.WriteFile(p, []byte(content)); err != nil {
			return fmt.Errorf("write scaffold %s: %w", p, err)
		}
	}
	return nil
}

// findProjectRoot locates the shallowest manifest in the tree and returns
// its directory ("" for the tree root). The second return is false when no
// manifest exists anywhere.
func findProjectRoot(adapter sandbox.Adapter) (string, bool) {
	paths, err := adapter.List()
	if err != nil {
		return "", false
	}

	var candidates []string
	for _, p := range paths {
		if path.Base(p) == types.ManifestFilename {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		di := strings.Count(candidates[i], "/")
		dj := strings.Count(candidates[j], "/")
		if di != dj {
			return di < dj
		}
		return candidates[i] < candidates[j]
	})

	dir := path.Dir(candidates[0])
	if dir == "." {
		dir = ""
	}
	return dir, true
}

// findStaticEntry looks for a servable static entry page.
func findStaticEntry(adapter sandbox.Adapter) (string, bool) {
	for _, candidate := range []string{"index.html", "public/index.html", "dist/index.html"} {
		if adapter.Exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// projectPath joins a project root with a relative path.
func projectPath(root, rel string) string {
	if root == "" {
		return rel
	}
	return path.Join(root, rel)
}

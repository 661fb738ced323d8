package bootstrap

import (
	"testing"

	"github.com/pithecene-io/foundry/types"
)

func TestDetectFramework(t *testing.T) {
	tests := []struct {
		name string
		deps map[string]string
		dev  map[string]string
		want Framework
	}{
		{"react", map[string]string{"react": "^18.0.0"}, nil, FrameworkReact},
		{"next wins over react", map[string]string{"next": "14.0.0", "react": "^18.0.0"}, nil, FrameworkNext},
		{"vue", map[string]string{"vue": "^3.0.0"}, nil, FrameworkVue},
		{"svelte dev dep", nil, map[string]string{"svelte": "^4.0.0"}, FrameworkSvelte},
		{"astro", map[string]string{"astro": "^4.0.0"}, nil, FrameworkAstro},
		{"vanilla", map[string]string{"lodash": "*"}, nil, FrameworkVanilla},
		{"empty", nil, nil, FrameworkVanilla},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &types.PackageManifest{Dependencies: tt.deps, DevDependencies: tt.dev}
			if got := DetectFramework(m); got != tt.want {
				t.Errorf("DetectFramework = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNormalizeDevScript(t *testing.T) {
	m := &types.PackageManifest{Scripts: map[string]string{"dev": "vite"}}
	if !normalizeDevScript(m, FrameworkReact, 5173) {
		t.Fatal("script not normalized")
	}
	if m.Scripts["dev"] != "vite --host 0.0.0.0 --port 5173" {
		t.Errorf("dev = %q", m.Scripts["dev"])
	}

	// Idempotent on second pass.
	if normalizeDevScript(m, FrameworkReact, 5173) {
		t.Error("second pass reported a change")
	}

	// Custom script with an explicit host is respected.
	m2 := &types.PackageManifest{Scripts: map[string]string{"dev": "node server.js --host 0.0.0.0"}}
	if normalizeDevScript(m2, FrameworkVanilla, 5173) {
		t.Error("custom host-bound script replaced")
	}
}

func TestDevScriptFor(t *testing.T) {
	if got := devScriptFor(FrameworkNext, 3000); got != "next dev -H 0.0.0.0 -p 3000" {
		t.Errorf("next = %q", got)
	}
	if got := devScriptFor(FrameworkVue, 5173); got != "vite --host 0.0.0.0 --port 5173" {
		t.Errorf("vue = %q", got)
	}
}

func TestFindProjectRoot_Shallowest(t *testing.T) {
	fake := newFakeAdapter()
	_ = fake.WriteFile("apps/web/package.json", []byte("{}"))
	_ = fake.WriteFile("package.json", []byte("{}"))
	_ = fake.WriteFile("apps/api/package.json", []byte("{}"))

	root, ok := findProjectRoot(fake)
	if !ok || root != "" {
		t.Errorf("root = %q ok=%v, want tree root", root, ok)
	}
}

func TestFindProjectRoot_Nested(t *testing.T) {
	fake := newFakeAdapter()
	_ = fake.WriteFile("project/package.json", []byte("{}"))
	_ = fake.WriteFile("project/src/main.js", []byte(""))

	root, ok := findProjectRoot(fake)
	if !ok || root != "project" {
		t.Errorf("root = %q ok=%v", root, ok)
	}
}

func TestFindProjectRoot_None(t *testing.T) {
	fake := newFakeAdapter()
	_ = fake.WriteFile("index.html", []byte(""))
	if _, ok := findProjectRoot(fake); ok {
		t.Error("found root without manifest")
	}
}

func TestEnsureScaffolding_NeverOverwrites(t *testing.T) {
	fake := newFakeAdapter()
	_ = fake.WriteFile("index.html", []byte("existing"))

	if err := ensureScaffolding(fake, "", FrameworkReact); err != nil {
		t.Fatalf("ensureScaffolding: %v", err)
	}
	data, _ := fake.ReadFile("index.html")
	if string(data) != "existing" {
		t.Error("existing entry page overwritten")
	}
	if !fake.Exists("src/main.jsx") {
		t.Error("missing entry not scaffolded")
	}
}

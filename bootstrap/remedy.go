package bootstrap

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/foundry/types"
)

// remedyCooldown suppresses re-applying the same remediation signature in
// quick succession; failed restarts re-emit the same output immediately.
const remedyCooldown = 15 * time.Second

// packageSubstitutions maps package names the model hallucinates to
// known-good replacements. Empty value means remove the dependency.
var packageSubstitutions = map[string]string{
	"react-dom-client":     "react-dom",
	"tailwindcss-animated": "tailwindcss-animate",
	"shadcn-ui":            "",
	"lucide-icons":         "lucide-react",
}

// remedyOutcome tells the supervisor what to do after a remediation.
type remedyOutcome struct {
	// reinstall runs the install ladder before restarting.
	reinstall bool
}

// remedy is one (matcher, remediation) pair. Matchers are evaluated in
// order against the bounded recent-output buffer; first match wins.
// Remediations are best effort, not guaranteed-correct.
type remedy struct {
	name    string
	pattern *regexp.Regexp
	apply   func(s *Supervisor, root string, match []string) (remedyOutcome, error)
}

// remedies is the ordered registry. More specific patterns come first:
// a missing relative import also mentions "Cannot find module".
var remedies = []remedy{
	{
		name:    "stub-missing-local-file",
		pattern: regexp.MustCompile(`(?:Failed to resolve import|Cannot find module) ['"](\.{1,2}/[^'"]+)['"](?:.* from ['"]([^'"]+)['"])?`),
		apply: func(s *Supervisor, root string, match []string) (remedyOutcome, error) {
			target := match[1]
			importer := ""
			if len(match) > 2 {
				importer = match[2]
			}
			return remedyOutcome{}, s.stubLocalFile(root, target, importer)
		},
	},
	{
		name:    "substitute-unknown-package",
		pattern: regexp.MustCompile(`404\s+Not Found.*['"]?([@a-z0-9][@a-z0-9._/-]*)['"]?\s+is not in (?:this|the) registry`),
		apply: func(s *Supervisor, root string, match []string) (remedyOutcome, error) {
			return remedyOutcome{reinstall: true}, s.substitutePackage(root, match[1])
		},
	},
	{
		name:    "add-missing-package",
		pattern: regexp.MustCompile(`(?:Failed to resolve import|Cannot find module|Cannot resolve) ['"]([@a-z0-9][@a-z0-9._/-]*)['"]`),
		apply: func(s *Supervisor, root string, match []string) (remedyOutcome, error) {
			return remedyOutcome{reinstall: true}, s.addDependency(root, match[1])
		},
	},
	{
		name:    "regenerate-vite-config",
		pattern: regexp.MustCompile(`failed to load config from .*vite\.config\.[jt]s`),
		apply: func(s *Supervisor, root string, _ []string) (remedyOutcome, error) {
			return remedyOutcome{}, s.regenerateViteConfig(root)
		},
	},
}

// remedyRegistry tracks cooldowns per matched signature.
type remedyRegistry struct {
	mu      sync.Mutex
	applied map[string]time.Time
	now     func() time.Time
}

func newRemedyRegistry() *remedyRegistry {
	return &remedyRegistry{
		applied: make(map[string]time.Time),
		now:     time.Now,
	}
}

// match scans the output buffer for the first applicable remedy whose
// signature is not cooling down. The returned signature keys the cooldown.
func (r *remedyRegistry) match(output string) (*remedy, []string, string, bool) {
	for i := range remedies {
		m := remedies[i].pattern.FindStringSubmatch(output)
		if m == nil {
			continue
		}
		signature := remedies[i].name + ":" + m[0]

		r.mu.Lock()
		last, seen := r.applied[signature]
		cooling := seen && r.now().Sub(last) < remedyCooldown
		if !cooling {
			r.applied[signature] = r.now()
		}
		r.mu.Unlock()

		if cooling {
			continue
		}
		return &remedies[i], m, signature, true
	}
	return nil, nil, "", false
}

// stubLocalFile auto-creates a missing local/aliased import target so the
// build can proceed. The stub exports an empty default for component-like
// extensions.
func (s *Supervisor) stubLocalFile(root, target, importer string) error {
	rel := strings.TrimPrefix(target, "./")
	rel = strings.TrimPrefix(rel, "../")
	if importer != "" {
		base := path.Dir(importer)
		if base != "." && base != "/" {
			rel = path.Join(strings.TrimPrefix(base, "/"), strings.TrimPrefix(target, "./"))
		}
	}
	if path.Ext(rel) == "" {
		rel += ".js"
	}
	p := projectPath(root, rel)
	if s.cfg.Sandbox.Exists(p) {
		return nil
	}

	var content string
	switch path.Ext(rel) {
	case ".jsx", ".tsx":
		content = "export default function Placeholder() {\n  return null\n}\n"
	case ".css":
		content = "/* placeholder */\n"
	default:
		content = "export default {}\n"
	}

	s.cfg.Logger.Info("stubbing missing local import", map[string]any{
		"path": p,
	})
	return s.cfg.Sandbox.WriteFile(p, []byte(content))
}

// addDependency records a missing third-party package in the manifest so
// the follow-up reinstall picks it up.
func (s *Supervisor) addDependency(root, name string) error {
	manifestPath := projectPath(root, types.ManifestFilename)
	data, err := s.cfg.Sandbox.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	manifest, err := types.ParseManifest(data)
	if err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Dependencies == nil {
		manifest.Dependencies = map[string]string{}
	}
	if _, ok := manifest.Dependencies[name]; ok {
		return nil
	}
	manifest.Dependencies[name] = "latest"

	out, err := manifest.Encode()
	if err != nil {
		return err
	}
	s.cfg.Logger.Info("adding missing dependency", map[string]any{
		"package": name,
	})
	return s.cfg.Sandbox.WriteFile(manifestPath, out)
}

// substitutePackage replaces a registry-absent package with a known-good
// alternative, or removes it when no substitution exists.
func (s *Supervisor) substitutePackage(root, name string) error {
	manifestPath := projectPath(root, types.ManifestFilename)
	data, err := s.cfg.Sandbox.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	manifest, err := types.ParseManifest(data)
	if err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	replacement, known := packageSubstitutions[name]
	for _, deps := range []map[string]string{manifest.Dependencies, manifest.DevDependencies} {
		version, ok := deps[name]
		if !ok {
			continue
		}
		delete(deps, name)
		if known && replacement != "" {
			if _, exists := deps[replacement]; !exists {
				deps[replacement] = version
			}
		}
	}

	out, err := manifest.Encode()
	if err != nil {
		return err
	}
	s.cfg.Logger.Info("substituted registry-absent package", map[string]any{
		"package":     name,
		"replacement": replacement,
	})
	return s.cfg.Sandbox.WriteFile(manifestPath, out)
}

// defaultViteConfig is written when the streamed config fails to load.
const defaultViteConfig = `import { defineConfig } from 'vite'

export default defineConfig({
  server: {
    host: '0.0.0.0',
  },
})
`

// regenerateViteConfig replaces a malformed vite config with a minimal
// working one.
func (s *Supervisor) regenerateViteConfig(root string) error {
	for _, name := range []string{"vite.config.ts", "vite.config.js"} {
		p := projectPath(root, name)
		if s.cfg.Sandbox.Exists(p) {
			s.cfg.Logger.Info("regenerating malformed vite config", map[string]any{
				"path": p,
			})
			return s.cfg.Sandbox.WriteFile(p, []byte(defaultViteConfig))
		}
	}
	return s.cfg.Sandbox.WriteFile(projectPath(root, "vite.config.js"), []byte(defaultViteConfig))
}

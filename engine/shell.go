package engine

import "strings"

// packageTools are the invocations subject to duplicate-prefix collapse and
// manager translation.
var packageTools = map[string]bool{
	"npm":  true,
	"npx":  true,
	"yarn": true,
	"pnpm": true,
	"bun":  true,
}

// serverCommandPatterns classify long-running dev-server invocations.
// Matched against the normalized command, whole-word prefix only.
var serverCommandPatterns = []string{
	"npm run dev",
	"npm run start",
	"npm run preview",
	"npm run serve",
	"npm start",
	"pnpm run dev",
	"pnpm dev",
	"yarn dev",
	"vite",
	"next dev",
	"next start",
	"astro dev",
	"nuxt dev",
	"webpack serve",
	"nodemon",
	"serve",
}

// IsServerCommand reports whether a shell command starts a long-running
// dev server. Classification is a fixed pattern set over the normalized
// command with any leading npx stripped; best effort, not exhaustive.
func IsServerCommand(command string) bool {
	c := strings.TrimSpace(command)
	c = strings.TrimPrefix(c, "npx ")
	for _, pat := range serverCommandPatterns {
		if c == pat || strings.HasPrefix(c, pat+" ") {
			return true
		}
	}
	// node server.js, node server/index.js and friends.
	return strings.HasPrefix(c, "node server")
}

// NormalizeShell canonicalizes a streamed shell command before execution:
// drops 2>&1 redirections the sandbox shell does not support, collapses
// accidental duplicate tool prefixes (npx npx vite), and translates
// equivalent package-manager verbs to the configured manager.
func NormalizeShell(command, packageManager string) string {
	if packageManager == "" {
		packageManager = "npm"
	}

	fields := strings.Fields(command)
	kept := fields[:0]
	for _, f := range fields {
		if f == "2>&1" {
			continue
		}
		kept = append(kept, f)
	}

	for len(kept) >= 2 && kept[0] == kept[1] && packageTools[kept[0]] {
		kept = kept[1:]
	}
	if len(kept) == 0 {
		return ""
	}

	if packageTools[kept[0]] && kept[0] != "npx" {
		kept = translateManager(kept, packageManager)
	}
	return strings.Join(kept, " ")
}

// translateManager rewrites a package-manager invocation for the configured
// manager. Verb equivalences: yarn/pnpm "add" is npm "install"; a bare
// manager invocation means install; script shorthands (yarn dev) need an
// explicit "run" under npm.
func translateManager(fields []string, pm string) []string {
	if fields[0] == pm {
		return fields
	}
	rest := fields[1:]
	if len(rest) == 0 {
		return []string{pm, "install"}
	}

	verb := rest[0]
	args := rest[1:]
	switch verb {
	case "add":
		if pm == "npm" {
			verb = "install"
		}
	case "i":
		verb = "install"
	case "remove", "rm":
		if pm == "npm" {
			verb = "uninstall"
		}
	case "dev", "build", "preview", "serve":
		// Script shorthand. npm has no implicit script invocation.
		if pm == "npm" {
			return append([]string{pm, "run", verb}, args...)
		}
	}
	return append([]string{pm, verb}, args...)
}

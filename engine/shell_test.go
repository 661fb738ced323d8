package engine

import "testing"

func TestNormalizeShell(t *testing.T) {
	tests := []struct {
		name    string
		command string
		pm      string
		want    string
	}{
		{"plain install", "npm install", "npm", "npm install"},
		{"yarn add", "yarn add react", "npm", "npm install react"},
		{"yarn bare", "yarn", "npm", "npm install"},
		{"pnpm add flags", "pnpm add -D vite", "npm", "npm install -D vite"},
		{"yarn dev shorthand", "yarn dev", "npm", "npm run dev"},
		{"yarn i", "yarn i", "npm", "npm install"},
		{"duplicate npx", "npx npx vite", "npm", "npx vite"},
		{"duplicate npm", "npm npm install", "npm", "npm install"},
		{"strip redirection", "npm install 2>&1", "npm", "npm install"},
		{"redirection mid command", "npm run build 2>&1 --silent", "npm", "npm run build --silent"},
		{"non manager untouched", "ls -la", "npm", "ls -la"},
		{"npm to pnpm", "npm install react", "pnpm", "pnpm install react"},
		{"yarn remove", "yarn remove react", "npm", "npm uninstall react"},
		{"empty pm defaults npm", "yarn add react", "", "npm install react"},
		{"empty command", "   ", "npm", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeShell(tt.command, tt.pm); got != tt.want {
				t.Errorf("NormalizeShell(%q, %q) = %q, want %q", tt.command, tt.pm, got, tt.want)
			}
		})
	}
}

func TestIsServerCommand(t *testing.T) {
	servers := []string{
		"npm run dev",
		"npm start",
		"npm run dev -- --port 3000",
		"npx vite",
		"vite",
		"vite --host 0.0.0.0",
		"next dev",
		"yarn dev",
		"node server.js",
		"nodemon index.js",
	}
	for _, cmd := range servers {
		if !IsServerCommand(cmd) {
			t.Errorf("IsServerCommand(%q) = false, want true", cmd)
		}
	}

	oneShots := []string{
		"npm install",
		"npm run build",
		"npm test",
		"ls -la",
		"vitest run",
		"next build",
		"node --version",
	}
	for _, cmd := range oneShots {
		if IsServerCommand(cmd) {
			t.Errorf("IsServerCommand(%q) = true, want false", cmd)
		}
	}
}

func TestStripResidualFence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no fence", "console.log(1)\n", "console.log(1)\n"},
		{"fenced", "```js\nconsole.log(1)\n```", "console.log(1)\n"},
		{"fenced no lang", "```\nbody\n```", "body\n"},
		{"opening only", "```js\nbody", "```js\nbody"},
		{"backticks inside", "const s = `x`\n", "const s = `x`\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripResidualFence(tt.content); got != tt.want {
				t.Errorf("stripResidualFence(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

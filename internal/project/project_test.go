package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliots/useexports/internal/transform"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func rel(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, 0, len(files))
	for _, f := range files {
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(r))
	}
	return out
}

func TestStripJSONC(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line comment", "{\"a\": 1 // x\n}", "{\"a\": 1     \n}"},
		{"block comment", `{/* c */"a": 1}`, `{       "a": 1}`},
		{"trailing comma object", `{"a": 1,}`, `{"a": 1 }`},
		{"trailing comma array", `[1, 2, ]`, `[1, 2  ]`},
		{"slashes in string", `{"a": "http://x/*y*/"}`, `{"a": "http://x/*y*/"}`},
		{"escaped quote", `{"a": "\"//"}`, `{"a": "\"//"}`},
		{"comma in string kept", `{"a": ",}"}`, `{"a": ",}"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, string(StripJSONC([]byte(tt.in))))
		})
	}
}

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		pattern string
		prefix  bool
		path    string
		match   bool
	}{
		{"/p/src/**/*", false, "/p/src/a.ts", true},
		{"/p/src/**/*", false, "/p/src/deep/er/a.ts", true},
		{"/p/src/**/*", false, "/p/lib/a.ts", false},
		{"/p/src/*.ts", false, "/p/src/a.ts", true},
		{"/p/src/*.ts", false, "/p/src/x/a.ts", false},
		{"/p/src", false, "/p/src/x/a.ts", true},
		{"/p/src/a?.ts", false, "/p/src/ab.ts", true},
		{"/p/src/a?.ts", false, "/p/src/a/b.ts", false},
		{"/p/a+b.ts", false, "/p/a+b.ts", true},
		{"/p/node_modules", true, "/p/node_modules/x/index.ts", true},
		{"/p/**/*.test.ts", true, "/p/src/a.test.ts", true},
		{"/p/**/*.test.ts", true, "/p/src/a.ts", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			re, err := CompileGlob(tt.pattern, tt.prefix)
			require.NoError(t, err)
			require.Equal(t, tt.match, re.MatchString(tt.path), re.String())
		})
	}
}

func TestLoadDefaultInclude(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"tsconfig.json": `{
  // comments and trailing commas are allowed
  "compilerOptions": {
    "module": "CommonJS",
    "target": "ES2019",
  },
}`,
		"src/a.ts":                 "export function a() {}",
		"src/b.tsx":                "export function b() {}",
		"src/c.js":                 "export function c() {}",
		"src/types.d.ts":           "export declare function d(): void;",
		"node_modules/m/index.ts":  "export function m() {}",
		".cache/x.ts":              "export function x() {}",
		"src/nested/deep/index.ts": "export function deep() {}",
	})

	p, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "tsconfig.json"), p.ConfigPath)
	require.Equal(t, transform.CompilerOptions{Module: transform.ModuleCommonJS, Target: transform.TargetES2019}, p.Options)
	require.Equal(t, []string{"src/a.ts", "src/b.tsx", "src/nested/deep/index.ts"}, rel(t, root, p.Files))
	require.Equal(t, filepath.Join(root, "src"), p.RootDir)
	require.True(t, p.Contains(filepath.Join(root, "src", "a.ts")))
	require.False(t, p.Contains(filepath.Join(root, "src", "c.js")))
}

func TestLoadIncludeExcludeAllowJs(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"tsconfig.json": `{
  "compilerOptions": { "allowJs": true, "outDir": "dist", "rootDir": "src" },
  "include": ["src"],
  "exclude": ["**/*.test.ts"],
  "files": ["scripts/setup.ts"]
}`,
		"src/a.ts":         "",
		"src/a.test.ts":    "",
		"src/lib/b.js":     "",
		"src/lib/c.mjs":    "",
		"scripts/setup.ts": "",
		"other/x.ts":       "",
	})

	p, err := Load(filepath.Join(root, "tsconfig.json"))
	require.NoError(t, err)
	require.Equal(t, []string{"scripts/setup.ts", "src/a.ts", "src/lib/b.js", "src/lib/c.mjs"}, rel(t, root, p.Files))
	require.Equal(t, filepath.Join(root, "dist"), p.OutDir)
	require.Equal(t, filepath.Join(root, "dist", "lib", "b.js"), p.OutputPath(filepath.Join(root, "src", "lib", "b.js")))
}

func TestLoadExtends(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"node_modules/@tsconfig/node18/tsconfig.json": `{"compilerOptions": {"module": "node16", "target": "es2022"}}`,
		"configs/base.json": `{
  "compilerOptions": { "module": "commonjs" },
  "include": ["../lib"]
}`,
		"tsconfig.json": `{
  "extends": ["@tsconfig/node18/tsconfig.json", "./configs/base"],
  "compilerOptions": { "target": "es5" }
}`,
		"lib/a.ts": "",
		"src/b.ts": "",
	})

	p, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, transform.ModuleCommonJS, p.Options.Module)
	require.Equal(t, transform.TargetES5, p.Options.Target)
	require.Equal(t, []string{"lib/a.ts"}, rel(t, root, p.Files))
}

func TestLoadExtendsCycle(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.json": `{"extends": "./b.json"}`,
		"b.json": `{"extends": "./a.json"}`,
	})
	_, err := LoadConfig(filepath.Join(root, "a.json"))
	require.ErrorIs(t, err, ErrExtendsCycle)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		tsconfig string
	}{
		{"bad module", `{"compilerOptions": {"module": "commonjs2"}}`},
		{"bad json", `{"compilerOptions": }`},
		{"bad extends type", `{"extends": 3}`},
		{"missing base", `{"extends": "./nope.json"}`},
		{"missing file", `{"files": ["nope.ts"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFiles(t, root, map[string]string{"tsconfig.json": tt.tsconfig})
			_, err := Load(root)
			require.Error(t, err)
		})
	}
}

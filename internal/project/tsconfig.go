// Package project loads a tsconfig.json: the compiler options the transform
// depends on and the set of source files the project covers.
package project

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/elliots/useexports/internal/transform"
)

// ErrExtendsCycle is returned when tsconfig files extend each other.
var ErrExtendsCycle = errors.New("tsconfig extends cycle")

type rawCompilerOptions struct {
	Module  *string `json:"module"`
	Target  *string `json:"target"`
	OutDir  *string `json:"outDir"`
	RootDir *string `json:"rootDir"`
	AllowJs *bool   `json:"allowJs"`
}

type rawConfig struct {
	Extends         jsontext.Value     `json:"extends"`
	Files           []string           `json:"files"`
	Include         []string           `json:"include"`
	Exclude         []string           `json:"exclude"`
	CompilerOptions rawCompilerOptions `json:"compilerOptions"`
}

// Config is a tsconfig.json with `extends` applied. Paths are absolute.
type Config struct {
	Path    string
	Dir     string
	Files   []string
	Include []string
	Exclude []string

	Module  string
	Target  string
	OutDir  string
	RootDir string
	AllowJs bool

	// Set when the file list came from this file or a base, so an empty
	// list is not replaced by the default include.
	hasFiles   bool
	hasInclude bool
}

// CompilerOptions parses the module and target settings.
func (c *Config) CompilerOptions() (transform.CompilerOptions, error) {
	var opts transform.CompilerOptions
	var err error
	if opts.Module, err = transform.ParseModuleKind(c.Module); err != nil {
		return opts, errors.Wrapf(err, "%s: compilerOptions.module", c.Path)
	}
	if opts.Target, err = transform.ParseScriptTarget(c.Target); err != nil {
		return opts, errors.Wrapf(err, "%s: compilerOptions.target", c.Path)
	}
	return opts, nil
}

// LoadConfig reads path and the chain of files it extends.
func LoadConfig(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolve tsconfig path")
	}
	return loadConfig(abs, make(map[string]bool))
}

func loadConfig(path string, seen map[string]bool) (*Config, error) {
	if seen[path] {
		return nil, errors.Wrapf(ErrExtendsCycle, "%s", path)
	}
	seen[path] = true
	defer delete(seen, path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var raw rawConfig
	if err := json.Unmarshal(StripJSONC(data), &raw); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	dir := filepath.Dir(path)
	cfg := &Config{Path: path, Dir: dir}

	bases, err := extendsList(raw.Extends)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: extends", path)
	}
	for _, base := range bases {
		basePath, err := resolveExtends(dir, base)
		if err != nil {
			return nil, err
		}
		parent, err := loadConfig(basePath, seen)
		if err != nil {
			return nil, err
		}
		cfg.inherit(parent)
	}

	// Paths in a config are relative to the file that declares them.
	abs := func(list []string) []string {
		out := make([]string, 0, len(list))
		for _, p := range list {
			if filepath.IsAbs(p) {
				out = append(out, filepath.Clean(p))
			} else {
				out = append(out, filepath.Join(dir, p))
			}
		}
		return out
	}
	if raw.Files != nil {
		cfg.Files, cfg.hasFiles = abs(raw.Files), true
	}
	if raw.Include != nil {
		cfg.Include, cfg.hasInclude = abs(raw.Include), true
	}
	if raw.Exclude != nil {
		cfg.Exclude = abs(raw.Exclude)
	}

	co := raw.CompilerOptions
	if co.Module != nil {
		cfg.Module = *co.Module
	}
	if co.Target != nil {
		cfg.Target = *co.Target
	}
	if co.OutDir != nil {
		cfg.OutDir = filepath.Join(dir, *co.OutDir)
	}
	if co.RootDir != nil {
		cfg.RootDir = filepath.Join(dir, *co.RootDir)
	}
	if co.AllowJs != nil {
		cfg.AllowJs = *co.AllowJs
	}
	return cfg, nil
}

// inherit copies settings from a base config. Later bases win.
func (c *Config) inherit(base *Config) {
	if base.hasFiles {
		c.Files, c.hasFiles = base.Files, true
	}
	if base.hasInclude {
		c.Include, c.hasInclude = base.Include, true
	}
	if base.Exclude != nil {
		c.Exclude = base.Exclude
	}
	if base.Module != "" {
		c.Module = base.Module
	}
	if base.Target != "" {
		c.Target = base.Target
	}
	if base.OutDir != "" {
		c.OutDir = base.OutDir
	}
	if base.RootDir != "" {
		c.RootDir = base.RootDir
	}
	if base.AllowJs {
		c.AllowJs = true
	}
}

func extendsList(v jsontext.Value) ([]string, error) {
	if len(v) == 0 || string(v) == "null" {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(v, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(v, &many); err != nil {
		return nil, errors.Newf("expected string or array of strings, got %s", string(v))
	}
	return many, nil
}

// resolveExtends locates a base config. Relative specifiers are resolved
// against dir; bare specifiers are looked up in node_modules.
func resolveExtends(dir, spec string) (string, error) {
	var candidates []string
	if strings.HasPrefix(spec, ".") || filepath.IsAbs(spec) {
		p := spec
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, spec)
		}
		candidates = append(candidates, p, p+".json")
	} else {
		for d := dir; ; d = filepath.Dir(d) {
			base := filepath.Join(d, "node_modules", spec)
			candidates = append(candidates, base, base+".json", filepath.Join(base, "tsconfig.json"))
			if filepath.Dir(d) == d {
				break
			}
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", errors.Newf("%s: cannot find base config %q", dir, spec)
}

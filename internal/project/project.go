package project

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/grafana/regexp"

	"github.com/elliots/useexports/internal/parser"
	"github.com/elliots/useexports/internal/transform"
)

var defaultExcludes = []string{"node_modules", "bower_components", "jspm_packages"}

var (
	tsExtensions = []string{".ts", ".tsx", ".mts", ".cts"}
	jsExtensions = []string{".js", ".jsx", ".mjs", ".cjs"}
)

// Project is a loaded tsconfig.json with its file list expanded.
type Project struct {
	ConfigPath string
	Dir        string
	Options    transform.CompilerOptions
	OutDir     string
	RootDir    string
	// Files are absolute paths, sorted.
	Files []string
}

// Load reads the tsconfig at path, or path/tsconfig.json when path is a
// directory, and expands its file list.
func Load(path string) (*Project, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "tsconfig.json")
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.CompilerOptions()
	if err != nil {
		return nil, err
	}
	files, err := cfg.expandFiles()
	if err != nil {
		return nil, err
	}
	p := &Project{
		ConfigPath: cfg.Path,
		Dir:        cfg.Dir,
		Options:    opts,
		OutDir:     cfg.OutDir,
		RootDir:    cfg.RootDir,
		Files:      files,
	}
	if p.RootDir == "" {
		p.RootDir = commonDir(files, cfg.Dir)
	}
	return p, nil
}

// Contains reports whether fileName is one of the project's files.
func (p *Project) Contains(fileName string) bool {
	abs, err := filepath.Abs(fileName)
	if err != nil {
		return false
	}
	_, found := slices.BinarySearch(p.Files, abs)
	return found
}

// OutputPath maps a source file into OutDir, keeping its path relative to
// RootDir. It returns fileName unchanged when there is no OutDir.
func (p *Project) OutputPath(fileName string) string {
	if p.OutDir == "" {
		return fileName
	}
	rel, err := filepath.Rel(p.RootDir, fileName)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(fileName)
	}
	return filepath.Join(p.OutDir, rel)
}

func (c *Config) expandFiles() ([]string, error) {
	exts := tsExtensions
	if c.AllowJs {
		exts = append(slices.Clone(tsExtensions), jsExtensions...)
	}

	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] && parser.IsSourceFile(p) {
			seen[p] = true
			files = append(files, p)
		}
	}

	// Explicit files are kept even when an exclude pattern matches them.
	for _, f := range c.Files {
		if _, err := os.Stat(f); err != nil {
			return nil, errors.Wrapf(err, "%s: files", c.Path)
		}
		add(f)
	}

	include := c.Include
	if !c.hasFiles && !c.hasInclude {
		include = []string{filepath.Join(c.Dir, "**", "*")}
	}
	if len(include) == 0 {
		slices.Sort(files)
		return files, nil
	}

	exclude := c.Exclude
	if exclude == nil {
		for _, d := range defaultExcludes {
			exclude = append(exclude, filepath.Join(c.Dir, d))
		}
		if c.OutDir != "" {
			exclude = append(exclude, c.OutDir)
		}
	}

	includes, err := compileGlobs(include, false)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: include", c.Path)
	}
	excludes, err := compileGlobs(exclude, true)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: exclude", c.Path)
	}

	for _, base := range globBases(include) {
		err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			slashed := filepath.ToSlash(p)
			if d.IsDir() {
				if p != base && (strings.HasPrefix(d.Name(), ".") || matchAny(excludes, slashed)) {
					return filepath.SkipDir
				}
				return nil
			}
			if !slices.Contains(exts, strings.ToLower(filepath.Ext(p))) {
				return nil
			}
			if matchAny(includes, slashed) && !matchAny(excludes, slashed) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walk %s", base)
		}
	}
	slices.Sort(files)
	return files, nil
}

// CompileGlob turns a tsconfig include or exclude pattern into a regexp
// over slash-separated absolute paths. A pattern whose last segment has no
// wildcard and no extension names a directory and matches everything below
// it. With prefix set the pattern also matches anything under a match.
func CompileGlob(pattern string, prefix bool) (*regexp.Regexp, error) {
	pattern = filepath.ToSlash(pattern)
	last := pattern[strings.LastIndex(pattern, "/")+1:]
	if !strings.ContainsAny(last, "*?") && !strings.Contains(last, ".") {
		pattern = strings.TrimSuffix(pattern, "/") + "/**/*"
	}

	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case strings.HasPrefix(pattern[i:], "**/"):
			b.WriteString("(?:[^/]*/)*")
			i += 2
		case strings.HasPrefix(pattern[i:], "**") && i+2 == len(pattern):
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		default:
			end := strings.IndexAny(pattern[i:], "*?")
			if end < 0 {
				end = len(pattern) - i
			}
			b.WriteString(regexp.QuoteMeta(pattern[i : i+end]))
			i += end - 1
		}
	}
	if prefix {
		b.WriteString("(?:/.*)?")
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func compileGlobs(patterns []string, prefix bool) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := CompileGlob(p, prefix)
		if err != nil {
			return nil, errors.Wrapf(err, "pattern %q", p)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(res []*regexp.Regexp, path string) bool {
	for _, re := range res {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// globBases returns the deepest wildcard-free directory of each pattern,
// dropping any base nested under another.
func globBases(patterns []string) []string {
	var bases []string
	for _, p := range patterns {
		parts := strings.Split(filepath.ToSlash(p), "/")
		n := 0
		for n < len(parts) && !strings.ContainsAny(parts[n], "*?") {
			n++
		}
		base := strings.Join(parts[:n], "/")
		if n == len(parts) {
			// No wildcard: a directory or a single file.
			if filepath.Ext(base) != "" {
				base = filepath.Dir(base)
			}
		}
		bases = append(bases, filepath.FromSlash(base))
	}
	slices.Sort(bases)
	var out []string
	for _, b := range bases {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if b == prev || strings.HasPrefix(b, prev+string(filepath.Separator)) {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

func commonDir(files []string, fallback string) string {
	if len(files) == 0 {
		return fallback
	}
	dir := filepath.Dir(files[0])
	for _, f := range files[1:] {
		for !strings.HasPrefix(f, dir+string(filepath.Separator)) && filepath.Dir(dir) != dir {
			dir = filepath.Dir(dir)
		}
	}
	return dir
}

package transform

import (
	"strings"

	"github.com/grafana/regexp"
)

// Config controls what the transform collects and how it rewrites.
type Config struct {
	// ExportsIdentifier is the name of the mutable export table that
	// rewritten references read through.
	// Default: "exports"
	ExportsIdentifier string

	// DefaultSlot is the table slot holding the default export.
	// Default: "default"
	DefaultSlot string

	// ExportClauses also collects functions exported through a local,
	// non-aliased clause such as `function foo() {}; export { foo }`.
	ExportClauses bool

	// FunctionVariables also collects `export const foo = () => ...` and
	// function expressions bound the same way.
	FunctionVariables bool

	// IgnoreNames is a list of compiled patterns. Exported functions whose
	// local name matches are left alone.
	IgnoreNames []*regexp.Regexp
}

const (
	DefaultExportsIdentifier = "exports"
	DefaultSlot              = "default"
)

// DefaultConfig returns the configuration matching the host's CommonJS
// output.
func DefaultConfig() Config {
	return Config{
		ExportsIdentifier: DefaultExportsIdentifier,
		DefaultSlot:       DefaultSlot,
		ExportClauses:     true,
	}
}

func (c Config) withDefaults() Config {
	if c.ExportsIdentifier == "" {
		c.ExportsIdentifier = DefaultExportsIdentifier
	}
	if c.DefaultSlot == "" {
		c.DefaultSlot = DefaultSlot
	}
	return c
}

// CompileIgnorePattern converts a glob-style pattern to a regexp.
// Supports wildcards: "test*" -> /^test.*$/
func CompileIgnorePattern(pattern string) (*regexp.Regexp, error) {
	var escaped strings.Builder
	for _, c := range pattern {
		switch c {
		case '.', '+', '^', '$', '{', '}', '(', ')', '|', '[', ']', '\\', '?':
			escaped.WriteString("\\" + string(c))
		case '*':
			escaped.WriteString(".*")
		default:
			escaped.WriteRune(c)
		}
	}
	return regexp.Compile("^" + escaped.String() + "$")
}

// CompileIgnorePatterns compiles a list of glob patterns to regexps.
// Invalid patterns are skipped.
func CompileIgnorePatterns(patterns []string) []*regexp.Regexp {
	var result []*regexp.Regexp
	for _, p := range patterns {
		re, err := CompileIgnorePattern(p)
		if err != nil {
			continue
		}
		result = append(result, re)
	}
	return result
}

// ShouldIgnoreName reports whether an exported function is excluded by
// IgnoreNames.
func (c *Config) ShouldIgnoreName(name string) bool {
	for _, re := range c.IgnoreNames {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

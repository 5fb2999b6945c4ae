// Package config loads the tool configuration file, `.useexports.yaml`.
//
// Every field is optional. Values left out fall back to the defaults
// returned by Default, and command line flags override both.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/elliots/useexports/internal/transform"
)

// FileName is the config file looked up in the project directory.
const FileName = ".useexports.yaml"

// Emit modes for batch transforms.
const (
	EmitSource   = "source"
	EmitCommonJS = "commonjs"
)

// Output modes for batch transforms.
const (
	OutputStdout = "stdout"
	OutputDir    = "dir"
	OutputDiff   = "diff"
)

// Config is the decoded `.useexports.yaml`.
type Config struct {
	// Project is the tsconfig.json to load files and compiler options from.
	Project string `yaml:"project"`

	ExportsIdentifier string   `yaml:"exportsIdentifier" validate:"omitempty,min=1"`
	DefaultSlot       string   `yaml:"defaultSlot" validate:"omitempty,min=1"`
	ExportClauses     *bool    `yaml:"exportClauses"`
	FunctionVariables bool     `yaml:"functionVariables"`
	IgnoreNames       []string `yaml:"ignoreNames" validate:"dive,min=1"`

	// Module and Target override the project's compiler options.
	Module string `yaml:"module" validate:"omitempty,oneof=none commonjs amd umd system es6 es2015 es2020 es2022 esnext node16 node18 nodenext preserve"`
	Target string `yaml:"target" validate:"omitempty,oneof=es3 es5 es6 es2015 es2016 es2017 es2018 es2019 es2020 es2021 es2022 es2023 es2024 esnext"`

	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`

	Concurrency int    `yaml:"concurrency" validate:"min=0,max=256"`
	Emit        string `yaml:"emit" validate:"omitempty,oneof=source commonjs"`
	Output      string `yaml:"output" validate:"omitempty,oneof=stdout dir diff"`
	OutDir      string `yaml:"outDir" validate:"required_if=Output dir"`
	SourceMaps  bool   `yaml:"sourceMaps"`

	LogLevel string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error fatal"`

	// Dir is the directory of the loaded file. Include and Exclude are
	// relative to it.
	Dir string `yaml:"-"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	clauses := true
	return &Config{
		ExportsIdentifier: transform.DefaultExportsIdentifier,
		DefaultSlot:       transform.DefaultSlot,
		ExportClauses:     &clauses,
		Concurrency:       runtime.GOMAXPROCS(0),
		Emit:              EmitSource,
		Output:            OutputStdout,
		LogLevel:          "info",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	cfg.Dir = filepath.Dir(path)
	if cfg.Project != "" && !filepath.IsAbs(cfg.Project) {
		cfg.Project = filepath.Join(filepath.Dir(path), cfg.Project)
	}
	if cfg.OutDir != "" && !filepath.IsAbs(cfg.OutDir) {
		cfg.OutDir = filepath.Join(filepath.Dir(path), cfg.OutDir)
	}
	return cfg, nil
}

// Find walks up from dir looking for FileName and loads the first match.
func Find(dir string) (*Config, string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", errors.Wrap(err, "resolve config directory")
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), "", nil
		}
		dir = parent
	}
}

// Parse decodes YAML into cfg and validates the result. Unknown keys are
// rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "decode yaml")
	}
	cfg.Module = strings.ToLower(cfg.Module)
	cfg.Target = strings.ToLower(cfg.Target)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	return cfg.Validate()
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return errors.Newf("invalid config: field %s fails %q (value %v)", first.Namespace(), first.Tag(), first.Value())
		}
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// TransformConfig builds the transform settings.
func (c *Config) TransformConfig() transform.Config {
	tc := transform.DefaultConfig()
	if c.ExportsIdentifier != "" {
		tc.ExportsIdentifier = c.ExportsIdentifier
	}
	if c.DefaultSlot != "" {
		tc.DefaultSlot = c.DefaultSlot
	}
	if c.ExportClauses != nil {
		tc.ExportClauses = *c.ExportClauses
	}
	tc.FunctionVariables = c.FunctionVariables
	tc.IgnoreNames = transform.CompileIgnorePatterns(c.IgnoreNames)
	return tc
}

// ApplyCompilerOptions overrides opts with the configured module and target.
func (c *Config) ApplyCompilerOptions(opts transform.CompilerOptions) (transform.CompilerOptions, error) {
	if c.Module != "" {
		m, err := transform.ParseModuleKind(c.Module)
		if err != nil {
			return opts, err
		}
		opts.Module = m
	}
	if c.Target != "" {
		t, err := transform.ParseScriptTarget(c.Target)
		if err != nil {
			return opts, err
		}
		opts.Target = t
	}
	return opts, nil
}

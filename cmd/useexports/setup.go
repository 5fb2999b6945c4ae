package main

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"github.com/elliots/useexports/internal/config"
	"github.com/elliots/useexports/internal/parser"
	"github.com/elliots/useexports/internal/project"
	"github.com/elliots/useexports/internal/transform"
)

// env is the state every command builds from its flags.
type env struct {
	logger  *log.Logger
	config  *config.Config
	project *project.Project
	options transform.CompilerOptions
}

func setup(f *flags) (*env, error) {
	var cfg *config.Config
	var err error
	if f.configFile != "" {
		cfg, err = config.Load(f.configFile)
	} else {
		cfg, _, err = config.Find(f.cwd)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		cfg.Dir = f.cwd
	}
	if f.module != "" {
		cfg.Module = f.module
	}
	if f.target != "" {
		cfg.Target = f.target
	}
	if f.project != "" {
		cfg.Project = abs(f.cwd, f.project)
	}

	level := cfg.LogLevel
	if f.logLevel != "" {
		level = f.logLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return nil, err
	}

	e := &env{logger: logger, config: cfg}
	projectPath := cfg.Project
	if projectPath == "" {
		if _, err := os.Stat(filepath.Join(f.cwd, "tsconfig.json")); err == nil {
			projectPath = f.cwd
		}
	}
	if projectPath != "" {
		if e.project, err = project.Load(projectPath); err != nil {
			return nil, err
		}
		e.options = e.project.Options
		logger.Debug("project loaded", "config", e.project.ConfigPath, "files", len(e.project.Files))
	}
	if e.options, err = cfg.ApplyCompilerOptions(e.options); err != nil {
		return nil, err
	}
	return e, nil
}

// files picks the files to transform: the arguments when given, otherwise
// the project's files, otherwise the config's include globs. The config's
// exclude globs apply in every case.
func (e *env) files(cwd string, args []string) ([]string, error) {
	var files []string
	switch {
	case len(args) > 0:
		for _, a := range args {
			files = append(files, abs(cwd, a))
		}
	case e.project != nil:
		files = slices.Clone(e.project.Files)
	case len(e.config.Include) > 0:
		for _, pattern := range e.config.Include {
			matches, err := filepath.Glob(abs(e.config.Dir, pattern))
			if err != nil {
				return nil, errors.Wrapf(err, "include %q", pattern)
			}
			for _, m := range matches {
				if parser.IsSourceFile(m) {
					files = append(files, m)
				}
			}
		}
	default:
		return nil, errors.New("no input files: pass files, --project, or set include in " + config.FileName)
	}

	if len(e.config.Exclude) > 0 {
		excludes := make([]func(string) bool, 0, len(e.config.Exclude))
		for _, pattern := range e.config.Exclude {
			re, err := project.CompileGlob(abs(e.config.Dir, pattern), true)
			if err != nil {
				return nil, errors.Wrapf(err, "exclude %q", pattern)
			}
			excludes = append(excludes, re.MatchString)
		}
		files = slices.DeleteFunc(files, func(f string) bool {
			slashed := filepath.ToSlash(f)
			return slices.ContainsFunc(excludes, func(match func(string) bool) bool { return match(slashed) })
		})
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func (e *env) transformer() (*transform.Transformer, error) {
	return transform.New(e.options, e.config.TransformConfig(), transform.WithLogger(e.logger))
}

func abs(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

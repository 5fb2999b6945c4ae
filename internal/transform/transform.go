// Package transform rewrites references to a module's own exported functions
// so they read through the CommonJS export table. After the rewrite a test
// can assign `exports.foo = stub` and every internal caller of foo, including
// sibling and recursive calls, sees the stub.
//
// The pipeline runs once per file: collect the exported functions, locate the
// identifiers that resolve to them, and rebuild the tree with those
// identifiers replaced by `exports.<name>`. Export declarations and every
// other node are left as they were.
package transform

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/elliots/useexports/internal/ast"
	"github.com/elliots/useexports/internal/binder"
	"github.com/elliots/useexports/internal/parser"
	"github.com/elliots/useexports/internal/printer"
)

// Transformer applies the rewrite to files compiled with one set of
// compiler options. It holds no per-file state and is safe for concurrent
// use.
type Transformer struct {
	opts   CompilerOptions
	cfg    Config
	logger *log.Logger
	parser *parser.Parser
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *log.Logger) Option {
	return func(t *Transformer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithParser sets the parser used by TransformSource.
func WithParser(p *parser.Parser) Option {
	return func(t *Transformer) {
		if p != nil {
			t.parser = p
		}
	}
}

// New creates a Transformer. It fails with *UnsupportedModuleTargetError
// when opts do not produce CommonJS output, since there is no export table
// to rewrite into.
func New(opts CompilerOptions, cfg Config, options ...Option) (*Transformer, error) {
	if err := CheckModuleTarget(opts); err != nil {
		return nil, err
	}
	t := &Transformer{
		opts:   opts,
		cfg:    cfg.withDefaults(),
		logger: log.New(io.Discard),
		parser: parser.New(),
	}
	for _, o := range options {
		o(t)
	}
	return t, nil
}

// Config returns the effective configuration.
func (t *Transformer) Config() Config {
	return t.cfg
}

// Result reports what a transform did to one file.
type Result struct {
	FileName  string
	Exports   []*ExportRecord
	Rewritten []*OccurrenceRecord
	Rejected  []Rejection
}

// Changed reports whether any occurrence was rewritten.
func (r *Result) Changed() bool {
	return len(r.Rewritten) > 0
}

// TransformFile rewrites file using resolver to tell references to an
// exported function apart from same-named bindings. The input tree is not
// modified. When nothing matches the returned file is file itself.
func (t *Transformer) TransformFile(file *ast.SourceFile, resolver Resolver) (*ast.SourceFile, *Result) {
	logger := t.logger.With("file", file.FileName)
	result := &Result{FileName: file.FileName}

	exports := collectExports(file, t.cfg, logger)
	result.Exports = records(exports)
	if exports.Len() == 0 {
		logger.Debug("no exported functions")
		return file, result
	}

	occurrences, rejected := locateReferences(file, exports, resolver, logger)
	result.Rejected = rejected

	rw := &rewriter{
		cfg:         t.cfg,
		target:      t.opts.Target,
		resolver:    resolver,
		occurrences: occurrences,
		logger:      logger,
	}
	root := rw.rewrite(file.Root)
	result.Rewritten = rw.applied

	if occurrences.Len() > 0 {
		logger.Warn("occurrences not reached by rewrite", "count", occurrences.Len())
	}
	logger.Debug("transformed", "exports", len(result.Exports), "rewritten", len(result.Rewritten), "rejected", len(result.Rejected))
	return file.Update(root), result
}

// Output is the printed result of TransformSource.
type Output struct {
	Code      string
	SourceMap *printer.RawSourceMap
	File      *ast.SourceFile
	Result    *Result
}

// TransformSource parses, binds, rewrites and prints one source file.
func (t *Transformer) TransformSource(ctx context.Context, fileName string, src []byte) (*Output, error) {
	file, err := t.parser.Parse(ctx, fileName, src)
	if err != nil {
		return nil, err
	}
	out, result := t.TransformFile(file, binder.Bind(file))
	code, sm := printer.PrintWithSourceMap(out)
	return &Output{Code: code, SourceMap: sm, File: out, Result: result}, nil
}

// TransformSource is a convenience wrapper creating a Transformer for a
// single file.
func TransformSource(ctx context.Context, fileName string, src []byte, opts CompilerOptions, cfg Config) (*Output, error) {
	t, err := New(opts, cfg)
	if err != nil {
		return nil, err
	}
	return t.TransformSource(ctx, fileName, src)
}

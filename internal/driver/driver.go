// Package driver runs the transform over a set of files: in parallel for a
// batch, or repeatedly as files change in watch mode.
package driver

import (
	"context"
	"io"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc/pool"
	"github.com/zeebo/xxh3"

	"github.com/elliots/useexports/internal/commonjs"
	"github.com/elliots/useexports/internal/config"
	"github.com/elliots/useexports/internal/metrics"
	"github.com/elliots/useexports/internal/transform"
)

// OutputNone transforms without writing anything, for checks. The other
// output modes are the config.Output* values.
const OutputNone = "none"

// Options controls what the driver emits and where.
type Options struct {
	Emit   string
	Output string
	// OutDir and RootDir place files in OutputDir mode: a file keeps its
	// path relative to RootDir under OutDir.
	OutDir     string
	RootDir    string
	SourceMaps bool
	// Concurrency bounds the number of files transformed at once.
	Concurrency int
}

// FileResult is the outcome for one file.
type FileResult struct {
	FileName string
	Original []byte
	// Code is the emitted text: the rewritten source, or its CommonJS
	// lowering.
	Code   string
	Output *transform.Output
	Err    error
	// Skipped is set when the content hash matched the previous run.
	Skipped bool
}

// Changed reports whether the emitted code differs from the input.
func (r *FileResult) Changed() bool {
	return r.Err == nil && !r.Skipped && r.Code != string(r.Original)
}

// Driver transforms files with one Transformer.
type Driver struct {
	transformer *transform.Transformer
	opts        Options
	logger      *log.Logger
	metrics     *metrics.Metrics
	stdout      io.Writer

	mu     sync.Mutex
	hashes map[string]uint64
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *log.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics records every file on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithStdout sets where stdout and diff output is written.
func WithStdout(w io.Writer) Option {
	return func(d *Driver) {
		d.stdout = w
	}
}

// New returns a Driver for t.
func New(t *transform.Transformer, opts Options, options ...Option) *Driver {
	if opts.Emit == "" {
		opts.Emit = config.EmitSource
	}
	if opts.Output == "" {
		opts.Output = config.OutputStdout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	d := &Driver{
		transformer: t,
		opts:        opts,
		logger:      log.New(io.Discard),
		stdout:      os.Stdout,
		hashes:      make(map[string]uint64),
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// Run transforms files and writes the results. Per-file failures are
// reported in the results; the returned error is for output failures and
// cancellation. Results are sorted by file name.
func (d *Driver) Run(ctx context.Context, files []string) ([]*FileResult, error) {
	p := pool.NewWithResults[*FileResult]().
		WithContext(ctx).
		WithMaxGoroutines(d.opts.Concurrency)
	for _, f := range files {
		p.Go(func(ctx context.Context) (*FileResult, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return d.processFile(ctx, f, false), nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	slices.SortFunc(results, func(a, b *FileResult) int {
		return strings.Compare(a.FileName, b.FileName)
	})

	w := d.writer(len(results) > 1)
	for _, r := range results {
		if r.Err != nil {
			d.logger.Error("transform failed", "file", r.FileName, "err", r.Err)
			continue
		}
		if err := w.write(r); err != nil {
			return results, err
		}
	}
	return results, nil
}

// processFile reads and transforms one file. With skipUnchanged set a file
// whose content hash matches the last run is not transformed again.
func (d *Driver) processFile(ctx context.Context, fileName string, skipUnchanged bool) *FileResult {
	r := &FileResult{FileName: fileName}
	src, err := os.ReadFile(fileName)
	if err != nil {
		r.Err = errors.Wrapf(err, "read %s", fileName)
		d.metrics.ObserveError()
		return r
	}
	r.Original = src

	hash := xxh3.Hash(src)
	d.mu.Lock()
	prev, seen := d.hashes[fileName]
	d.mu.Unlock()
	if skipUnchanged && seen && prev == hash {
		d.metrics.ObserveCache(true)
		r.Skipped = true
		return r
	}
	// Only content that transformed cleanly counts as seen, so a failed file
	// is retried on the next event even when its bytes did not change.
	defer func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if r.Err == nil {
			d.hashes[fileName] = hash
		} else {
			delete(d.hashes, fileName)
		}
	}()
	if skipUnchanged {
		d.metrics.ObserveCache(false)
	}

	source := "batch"
	if skipUnchanged {
		source = "watch"
	}
	start := time.Now()
	out, err := d.transformer.TransformSource(ctx, fileName, src)
	if err != nil {
		r.Err = err
		d.metrics.ObserveError()
		return r
	}
	r.Output = out
	r.Code = out.Code
	d.metrics.ObserveResult(source, out.Result, time.Since(start))

	if d.opts.Emit == config.EmitCommonJS {
		code, err := commonjs.Lower(out.File)
		if err != nil {
			r.Err = err
			return r
		}
		r.Code = code
	}

	d.logger.Debug("processed", "file", fileName, "rewritten", len(out.Result.Rewritten), "rejected", len(out.Result.Rejected))
	return r
}

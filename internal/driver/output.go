package driver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/elliots/useexports/internal/config"
)

type writer interface {
	write(r *FileResult) error
}

func (d *Driver) writer(multiple bool) writer {
	switch d.opts.Output {
	case config.OutputDir:
		return &dirWriter{d: d}
	case config.OutputDiff:
		return &diffWriter{w: d.stdout}
	case OutputNone:
		return nopWriter{}
	}
	return &stdoutWriter{d: d, headers: multiple}
}

type nopWriter struct{}

func (nopWriter) write(*FileResult) error { return nil }

// stdoutWriter prints every file. With more than one file each is preceded
// by a comment naming it.
type stdoutWriter struct {
	d       *Driver
	headers bool
}

func (s *stdoutWriter) write(r *FileResult) error {
	if s.headers {
		if _, err := fmt.Fprintf(s.d.stdout, "// %s\n", r.FileName); err != nil {
			return err
		}
	}
	code := r.Code
	if comment, ok := s.d.inlineSourceMap(r); ok {
		code = withTrailingNewline(code) + comment + "\n"
	}
	_, err := io.WriteString(s.d.stdout, withTrailingNewline(code))
	return err
}

// dirWriter mirrors files into OutDir.
type dirWriter struct {
	d *Driver
}

func (w *dirWriter) write(r *FileResult) error {
	target := w.d.OutputPath(r.FileName)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrapf(err, "create output directory for %s", target)
	}
	code := r.Code
	if w.d.wantsSourceMap(r) {
		data, err := r.Output.SourceMap.Marshal()
		if err != nil {
			return errors.Wrapf(err, "encode source map for %s", r.FileName)
		}
		mapPath := target + ".map"
		if err := os.WriteFile(mapPath, data, 0o644); err != nil {
			return errors.Wrapf(err, "write %s", mapPath)
		}
		code = withTrailingNewline(code) + "//# sourceMappingURL=" + filepath.Base(mapPath) + "\n"
	}
	if err := os.WriteFile(target, []byte(code), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", target)
	}
	w.d.logger.Info("wrote", "file", target, "rewritten", len(r.Output.Result.Rewritten))
	return nil
}

// diffWriter prints a unified diff for every changed file.
type diffWriter struct {
	w io.Writer
}

func (w *diffWriter) write(r *FileResult) error {
	if !r.Changed() {
		return nil
	}
	_, err := io.WriteString(w.w, Diff(r.FileName, string(r.Original), r.Code))
	return err
}

// Diff returns the unified diff between before and after.
func Diff(fileName, before, after string) string {
	edits := myers.ComputeEdits(span.URIFromPath(fileName), before, after)
	return fmt.Sprint(gotextdiff.ToUnified("a/"+fileName, "b/"+fileName, before, edits))
}

// OutputPath returns where OutputDir mode writes fileName. CommonJS output
// takes the JavaScript extension matching the source.
func (d *Driver) OutputPath(fileName string) string {
	rel, err := filepath.Rel(d.opts.RootDir, fileName)
	if d.opts.RootDir == "" || err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(fileName)
	}
	target := filepath.Join(d.opts.OutDir, rel)
	if d.opts.Emit != config.EmitCommonJS {
		return target
	}
	ext := filepath.Ext(target)
	js := ".js"
	switch strings.ToLower(ext) {
	case ".mts", ".mjs":
		js = ".mjs"
	case ".cts", ".cjs":
		js = ".cjs"
	}
	return strings.TrimSuffix(target, ext) + js
}

// wantsSourceMap reports whether a map is written for r. Maps describe the
// rewritten source, so CommonJS output carries none.
func (d *Driver) wantsSourceMap(r *FileResult) bool {
	return d.opts.SourceMaps && d.opts.Emit != config.EmitCommonJS && r.Output != nil && r.Output.SourceMap != nil
}

func (d *Driver) inlineSourceMap(r *FileResult) (string, bool) {
	if !d.wantsSourceMap(r) {
		return "", false
	}
	comment, err := r.Output.SourceMap.InlineComment()
	if err != nil {
		d.logger.Warn("source map not written", "file", r.FileName, "err", err)
		return "", false
	}
	return comment, true
}

func withTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

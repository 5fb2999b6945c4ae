package driver

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// Watch transforms files once, then again whenever one of them is written,
// until ctx is done. Each result is written to the configured output and
// passed to handle. Writes that leave a file's content unchanged are ignored.
func (d *Driver) Watch(ctx context.Context, files []string, handle func(*FileResult)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create file watcher")
	}
	defer watcher.Close()

	tracked := make(map[string]bool, len(files))
	var dirs []string
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return errors.Wrapf(err, "resolve %s", f)
		}
		tracked[abs] = true
		if dir := filepath.Dir(abs); !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	// Directories rather than files, so editors that replace a file on save
	// are still seen.
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return errors.Wrapf(err, "watch %s", dir)
		}
	}
	d.logger.Info("watching", "files", len(tracked), "dirs", len(dirs))

	for f := range tracked {
		d.handleChange(ctx, f, handle)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("watch error", "err", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !tracked[filepath.Clean(ev.Name)] {
				continue
			}
			d.handleChange(ctx, filepath.Clean(ev.Name), handle)
		}
	}
}

func (d *Driver) handleChange(ctx context.Context, fileName string, handle func(*FileResult)) {
	r := d.processFile(ctx, fileName, true)
	if r.Skipped {
		d.logger.Debug("unchanged", "file", fileName)
		return
	}
	if r.Err != nil {
		d.logger.Error("transform failed", "file", fileName, "err", r.Err)
	} else if err := d.writer(true).write(r); err != nil {
		d.logger.Error("write failed", "file", fileName, "err", err)
	}
	if handle != nil {
		handle(r)
	}
}

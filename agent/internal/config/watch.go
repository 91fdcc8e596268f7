package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadSettle is how long the file must be quiet before it is re-read.
// Editors often truncate, write and rename in quick succession.
const reloadSettle = 250 * time.Millisecond

// Watch re-reads path whenever it is written or replaced and passes each
// valid result to onChange. Bursts of events within reloadSettle collapse
// into one reload. An invalid file is logged and skipped, so the caller keeps
// running with what it has. Watch returns when ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// A watch on the file itself goes silent once an atomic save swaps the
	// inode; the parent directory keeps reporting.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", abs)

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == abs && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				settle.Reset(reloadSettle)
			}

		case <-settle.C:
			cfg, err := Load(abs)
			if err != nil {
				slog.Warn("config: change ignored, file does not load",
					"path", abs, "err", err)
				continue
			}
			slog.Info("config: change detected", "path", abs, "interval", cfg.Agent.Interval)
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config: watch error", "err", err)
		}
	}
}

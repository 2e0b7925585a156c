package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "calwidget/internal/log"
)

// reloadDebounce collapses the burst of events editors produce on save.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the config at path whenever it changes and passes the new
// value to onChange. Invalid files are logged and skipped; the previous
// config stays in effect. Watch blocks until ctx is canceled.
//
// The parent directory is watched rather than the file itself so that
// atomic rename-over saves (including Save) are seen.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Error("config watcher error", err, "path", abs)

		case <-pending:
			pending = nil
			cfg, err := Load(abs)
			if err != nil {
				appLog.Error("config reload failed; keeping previous config", err, "path", abs)
				continue
			}
			appLog.Info("config reloaded", "path", abs, "ics_count", len(cfg.ICS))
			onChange(cfg)
		}
	}
}

package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadDelay is how long Watch lets the file settle after the last change
// before reloading it. A single editor save arrives as a burst of events, and
// every reload rebuilds the CORS and WebSocket origin lists.
const ReloadDelay = 250 * time.Millisecond

// Watch monitors path and calls onChange with the newly loaded Config once a
// burst of changes has settled. It runs until ctx is cancelled.
//
// The containing directory is watched, so saves that replace the file by
// rename keep being seen. A reload whose bytes match the active config is
// skipped. If a reload fails (e.g. invalid YAML) the error is logged and the
// previous config stays active; onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)
	active, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("server config: watch %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("server config: watch %q: %w", path, err)
	}

	slog.Info("config: watching for changes", "path", path, "delay", ReloadDelay)

	settle := time.NewTimer(ReloadDelay)
	stopTimer(settle)
	defer settle.Stop()
	pending := 0

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending++
			stopTimer(settle)
			settle.Reset(ReloadDelay)

		case <-settle.C:
			events := pending
			pending = 0

			data, err := os.ReadFile(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			if bytes.Equal(data, active) {
				slog.Debug("config: unchanged, skipping reload", "path", path, "events", events)
				continue
			}
			cfg, err := Parse(data)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			active = data

			slog.Info("config: reloaded", "path", path, "events", events)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// stopTimer stops t and drains a tick that already fired, so Reset starts a
// fresh countdown.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

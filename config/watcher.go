package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/capturescene/capturescene/logging"
)

// DefaultDebounce collapses the bursts of events editors produce on save.
const DefaultDebounce = 250 * time.Millisecond

// Watch calls onChange with the re-read config every time the file at path
// changes, until ctx is done. Configs that fail to read or validate are
// logged and skipped. The parent directory is watched so that editors which
// save by renaming are seen.
func Watch(ctx context.Context, path string, wait time.Duration, logger logging.Logger, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create config watcher")
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Debugw("error closing config watcher", "error", err)
		}
	}()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "failed to watch %q", filepath.Dir(abs))
	}

	reload := func() {
		if ctx.Err() != nil {
			return
		}
		cfg, err := Read(abs)
		if err != nil {
			logger.Warnw("ignoring config change", "path", abs, "error", err)
			return
		}
		logger.Infow("config reloaded", "path", abs)
		onChange(cfg)
	}
	debounced := debounce.New(wait)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounced(reload)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("config watcher error", "error", err)
		}
	}
}

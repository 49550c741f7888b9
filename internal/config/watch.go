package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/vango-dev/statekit/internal/errors"
)

// Watch reloads the file at path whenever it changes and passes every
// configuration that loads and validates to fn. Invalid files are logged
// and skipped. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file itself so that
// editors which save by rename are picked up.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.New(errors.CodeConfigWatch).Wrap(err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New(errors.CodeConfigWatch).Wrap(err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.New(errors.CodeConfigWatch).
			WithDetail("Cannot watch " + filepath.Dir(abs)).
			Wrap(err)
	}

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := LoadFile(abs)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				logger.Warn("config: reload failed, keeping previous configuration",
					"path", abs,
					"error", errors.FromError(err, errors.CodeConfigInvalid).FormatCompact(),
				)
				continue
			}
			logger.Info("config: reloaded", "path", abs)
			fn(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config: watch error",
				"path", abs,
				"error", errors.FromError(err, errors.CodeConfigWatch).FormatCompact(),
			)
		}
	}
}

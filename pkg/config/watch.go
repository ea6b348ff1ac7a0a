package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/oladejiayo/localzure/internal/logger"
)

// Watch reloads the config file whenever it changes on disk and invokes
// onReload with the freshly validated configuration. A file that fails
// to reload keeps the previous configuration; the error is logged and
// watching continues.
//
// Watch blocks until ctx is cancelled. Run it in its own goroutine.
func Watch(ctx context.Context, configPath string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file. Editors replace files on save,
	// which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(configPath)
			if err != nil {
				logger.Warn("config reload failed, keeping previous configuration",
					"path", configPath, "error", err)
				continue
			}
			logger.Info("configuration reloaded", "path", configPath)
			onReload(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/npchat/internal/logger"
)

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// DefaultWatchDebounce is how long a config file must be quiet before it is
// reloaded. Editors often write a file in several steps.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes the
// result to fn. A file that fails to load or validate is reported through
// fn's error; the caller keeps its previous config.
//
// The parent directory is watched rather than the file itself so that
// atomic saves (write temp file, rename over) are seen. Watch blocks until
// ctx is cancelled.
func Watch(ctx context.Context, path string, fn func(*Config, error)) error {
	return watch(ctx, path, DefaultWatchDebounce, fn)
}

func watch(ctx context.Context, path string, debounce time.Duration, fn func(*Config, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	log := logger.With("component", "config-watch", "path", abs)
	log.Debug("watching config file")

	ticker := time.NewTicker(debounce / 2)
	defer ticker.Stop()

	var pending time.Time // last change not yet reloaded

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
			// Remove and rename are followed by a create when the file is
			// replaced; only content-bearing events schedule a reload.
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				pending = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", "error", err)

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < debounce {
				continue
			}
			pending = time.Time{}

			cfg, err := LoadFromPath(abs)
			if err != nil {
				log.Warn("config reload failed", "error", err)
			} else {
				log.Info("config reloaded")
			}
			fn(cfg, err)
		}
	}
}

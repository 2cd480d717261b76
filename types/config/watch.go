package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// SecretRotator swaps encryption secrets at runtime.
type SecretRotator interface {
	Rotate(active string, retired []string) error
}

const reloadDebounce = 200 * time.Millisecond

// Watch reloads path whenever it changes and hands the new secrets to rotator. Invalid
// files are logged and skipped; the previous secrets stay active. Watch blocks until ctx
// is done.
func Watch(ctx context.Context, path, instance string, rotator SecretRotator, logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	// editors replace files on save, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := LoadFile(path, instance)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("config reload rejected")
			return
		}
		if cfg.EncryptionSecret == "" {
			return
		}
		if err := rotator.Rotate(cfg.EncryptionSecret, cfg.OldSecrets); err != nil {
			logger.Error().Err(err).Msg("secret rotation failed")
			return
		}
		logger.Info().Int("retired", len(cfg.OldSecrets)).Msg("encryption secrets rotated")
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher error")
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, reload)
			mu.Unlock()
		}
	}
}

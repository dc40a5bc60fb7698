package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Watch reloads the config file whenever it is written and hands the result
// to onChange. Reload failures are logged and the previous config stays in
// effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, cfgFile string, onChange func(*Config)) error {
	if cfgFile == "" {
		return errors.New("no config file to watch")
	}

	abs, err := filepath.Abs(cfgFile)
	if err != nil {
		return errors.Errorf("resolving %s: %w", cfgFile, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// editors often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	logger := zerolog.Ctx(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(abs, nil)
			if err != nil {
				logger.Warn().Err(err).Str("file", abs).Msg("reloading config")
				continue
			}
			logger.Info().Str("file", abs).Msg("config reloaded")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher")
		}
	}
}

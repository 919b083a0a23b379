package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads the config file when it changes on disk and reports
// endpoint changes. Other settings are picked up on the next restart.
type ConfigWatcher struct {
	path        string
	logger      *slog.Logger
	onURLChange func(url string)

	mu      sync.Mutex
	current *Config
}

// NewConfigWatcher watches path. onURLChange runs on the watcher goroutine
// whenever a reload yields a different websocketUrl.
func NewConfigWatcher(path string, initial *Config, onURLChange func(url string), logger *slog.Logger) *ConfigWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigWatcher{
		path:        path,
		logger:      logger.With("component", "config"),
		onURLChange: onURLChange,
		current:     initial,
	}
}

// Current returns the most recently loaded configuration.
func (w *ConfigWatcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run blocks until ctx is done or the watcher fails.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.logger.Info("config file changed", "path", w.path)
			w.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// Reload re-reads the file. A broken file keeps the previous configuration.
func (w *ConfigWatcher) Reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("failed to reload config", "error", err)
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = cfg
	w.mu.Unlock()

	if prev != nil && prev.WebsocketURL == cfg.WebsocketURL {
		return
	}
	w.logger.Info("websocket url changed", "url", cfg.WebsocketURL)
	if w.onURLChange != nil {
		w.onURLChange(cfg.WebsocketURL)
	}
}

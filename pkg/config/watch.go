package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces editor write bursts into one reload.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	onReload func(*Config)

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for path. onReload receives every
// successfully reloaded configuration; invalid files are logged and skipped.
func NewWatcher(path string, onReload func(*Config), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		debounce: DefaultWatchDebounce,
		logger:   logger.With("component", "config.watcher"),
		onReload: onReload,
	}
}

// Watch blocks until ctx is cancelled. The parent directory is watched so
// that atomic renames by editors and config-map updates are observed.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	target, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", w.path, err)
	}
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(target), err)
	}

	w.logger.Info("Configuration watcher started", "path", target)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			w.logger.Info("Configuration watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.schedule()

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("Configuration watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := ReloadConfig(w.path)
	if err != nil {
		w.logger.Error("Configuration reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("Configuration reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

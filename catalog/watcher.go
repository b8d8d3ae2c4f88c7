package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures the catalog file watcher.
type WatcherConfig struct {
	// Path is the catalog YAML file to watch.
	Path string

	// DebounceDelay is how long to wait for more changes before reloading.
	DebounceDelay time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// Watcher reloads the catalog file when it changes and swaps the active
// catalog atomically. Invalid files are logged and skipped; the previous
// catalog stays active.
type Watcher struct {
	config  WatcherConfig
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// Debouncing: editors often emit several write events per save.
	pendingMu sync.Mutex
	pending   bool

	current atomic.Pointer[Catalog]
}

// NewWatcher creates a watcher with the given initial catalog.
func NewWatcher(config WatcherConfig, initial *Catalog) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.DebounceDelay == 0 {
		config.DebounceDelay = 250 * time.Millisecond
	}

	w := &Watcher{
		config:  config,
		watcher: fsw,
		logger:  logger,
	}
	w.current.Store(initial)
	return w, nil
}

// Current returns the active catalog.
func (w *Watcher) Current() *Catalog {
	return w.current.Load()
}

// Start begins watching the catalog file for changes.
func (w *Watcher) Start(ctx context.Context) error {
	// Watch the directory: editors replace files on save, which would
	// otherwise drop the watch on the file itself.
	if err := w.watcher.Add(filepath.Dir(w.config.Path)); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Catalog watcher started",
		"path", w.config.Path,
		"debounce", w.config.DebounceDelay)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.config.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.config.Path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.pendingMu.Lock()
				w.pending = true
				w.pendingMu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Catalog watcher error", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

// flushPending reloads the catalog if a change is pending.
func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = false
	w.pendingMu.Unlock()

	if !pending {
		return
	}

	cat, err := LoadFromFile(w.config.Path)
	if err != nil {
		w.logger.Warn("Catalog reload failed, keeping previous catalog",
			"path", w.config.Path,
			"error", err)
		return
	}

	w.current.Store(cat)
	w.logger.Info("Catalog reloaded",
		"path", w.config.Path,
		"assignments", len(cat.Assignments()))
}

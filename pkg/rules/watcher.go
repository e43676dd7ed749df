package rules

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads a rules file into an Engine when it changes on
// disk. Editors and config-management tools write files as bursts of
// events (and often as rename-over-temp), so the watcher registers the
// parent directory, filters to the target file, and debounces before
// reloading. A reload that fails to parse keeps the previous rule set
// installed.
type Watcher struct {
	path     string
	engine   *Engine
	logger   *slog.Logger
	debounce time.Duration

	fw *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	timer   *time.Timer
}

// NewWatcher creates a watcher for the given rules file. Start must be
// called to begin watching.
func NewWatcher(path string, engine *Engine, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default().With("component", "rules.watcher")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		engine:   engine,
		logger:   logger,
		debounce: debounce,
		fw:       fw,
	}, nil
}

// Start begins watching and blocks until the context is cancelled. It
// loads the file once up front so the engine starts from the on-disk
// state rather than waiting for the first change.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.mu.Unlock()
		w.fw.Close()
	}()

	// Watch the directory: rename-over-temp replaces the inode, so a
	// watch on the file itself goes stale after the first save.
	if err := w.fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	if err := w.reload(); err != nil {
		w.logger.Warn("initial rules load failed, keeping current set", "path", w.path, "error", err)
	}

	w.logger.Info("rules watcher started", "path", w.path, "debounce_ms", w.debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rules watcher stopped")
			return nil

		case event, ok := <-w.fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("rules file event", "op", event.Op.String())
			w.schedule()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("rules watcher error", "error", err)
		}
	}
}

// relevant filters directory events down to writes of the target file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// schedule arms (or re-arms) the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.reload(); err != nil {
			w.logger.Error("rules reload failed, keeping current set", "path", w.path, "error", err)
		}
	})
}

func (w *Watcher) reload() error {
	rs, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	w.engine.Replace(rs)
	w.logger.Info("rules reloaded", "path", w.path, "rules", len(rs))
	return nil
}

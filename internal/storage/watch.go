package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a FileStorage when its record files change on disk, so
// edits made outside the admin API take effect without a restart
type Watcher struct {
	store    *FileStorage
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer

	reloads chan struct{} // receives after each reload, used by tests
}

// NewWatcher creates a watcher over the store's record directories
func NewWatcher(store *FileStorage, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	for _, dir := range []string{endpointsDir, responsesDir, rulesDir} {
		path := filepath.Join(store.BasePath(), dir)
		if err := fw.Add(path); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	return &Watcher{
		store:    store,
		watcher:  fw,
		debounce: debounce,
		logger:   logger.With("component", "storage.watch"),
		reloads:  make(chan struct{}, 1),
	}, nil
}

// Run processes file events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching storage for changes",
		"path", w.store.BasePath(),
		"debounce_ms", w.debounce.Milliseconds(),
	)

	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("storage file changed", "path", event.Name, "op", event.Op.String())
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("storage watcher error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(event.Name)
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}

// schedule restarts the debounce timer
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	if err := w.store.Reload(); err != nil {
		w.logger.Error("storage reload failed", "error", err)
		return
	}
	w.logger.Info("storage reloaded from disk")

	select {
	case w.reloads <- struct{}{}:
	default:
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("failed to close watcher", "error", err)
	}
}

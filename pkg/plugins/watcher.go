package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of filesystem events an unpack or
// editor save produces into one re-scan.
const watchDebounce = 500 * time.Millisecond

// Watcher re-runs discovery on a registry whenever the plugin root changes
// on disk, so dropping a plugin directory into place is enough to make it
// appear in the catalog.
type Watcher struct {
	registry *Registry
	root     string
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewWatcher creates a watcher over root. Call Watch to start it.
func NewWatcher(registry *Registry, root string, logger *slog.Logger) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve plugin root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		registry: registry,
		root:     absRoot,
		logger:   logger,
	}, nil
}

// Watch starts watching and returns a channel that receives each
// discovery result. The channel closes when ctx ends or Close is called.
func (w *Watcher) Watch(ctx context.Context) (<-chan []*Info, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, fmt.Errorf("watcher is closed")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fsw.Add(w.root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch plugin root %s: %w", w.root, err)
	}
	w.watcher = fsw

	ch := make(chan []*Info, 1)
	go w.watchLoop(ctx, fsw, ch)

	w.logger.Info("watching plugin root", "path", w.root)
	return ch, nil
}

func (w *Watcher) watchLoop(ctx context.Context, fsw *fsnotify.Watcher, ch chan<- []*Info) {
	// A debounce timer can fire after the loop has exited (watcher closed,
	// ctx cancelled), so every path that touches ch synchronizes on mu and
	// checks done. ch is only closed after done is set.
	var (
		mu       sync.Mutex
		done     bool
		debounce *time.Timer
	)
	defer func() {
		mu.Lock()
		done = true
		if debounce != nil {
			debounce.Stop()
		}
		mu.Unlock()
		fsw.Close()
		close(ch)
	}()

	deliver := func(infos []*Info) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		select {
		case ch <- infos:
		default:
			// A result is already pending; the next consumer read is fresh enough.
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			// Only creations and removals alter the plugin catalog;
			// writes inside a plugin directory do not reach the root watch.
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				infos, err := w.registry.Discover(ctx, w.root)
				if err != nil {
					w.logger.Error("plugin re-discovery failed", "path", w.root, "error", err)
					return
				}
				deliver(infos)
			})
			mu.Unlock()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("plugin watcher error", "error", err)
		}
	}
}

// Close stops the watcher and releases its filesystem handle.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		return err
	}
	return nil
}

package prompts

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bridgefund/internal/logging"
)

// Watcher reloads a Catalog when its override file changes. It watches the
// containing directory so editors that save by rename are picked up.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	catalog     *Catalog
	target      string
	pending     time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	reloads     int
}

// NewWatcher creates a watcher for the catalog's override file.
func NewWatcher(c *Catalog) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     w,
		catalog:     c,
		target:      filepath.Clean(c.Path()),
		debounceDur: 200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.target)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Prompts("watching prompt overrides: %s", w.target)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryPrompts).Error("error closing watcher: %v", err)
	}
}

// Reloads returns how many reloads have been applied.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logging.PromptsDebug("override event %s on %s", event.Op, event.Name)
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryPrompts).Error("watcher error: %v", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

// flush reloads once events have settled past the debounce window.
func (w *Watcher) flush() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	if err := w.catalog.Reload(); err != nil {
		logging.Get(logging.CategoryPrompts).Warn("keeping previous overrides: %v", err)
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
}

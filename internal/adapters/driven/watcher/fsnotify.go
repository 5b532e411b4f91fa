// Package watcher provides a recursive file watcher built on fsnotify.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/logger"
)

// Ensure Watcher implements the interface.
var _ driven.FileWatcher = (*Watcher)(nil)

// DefaultDebounce is how long a path must be quiet before it is reported.
const DefaultDebounce = 500 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a change is reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// Watcher reports regular files that were created or written under a
// set of roots. Directories created after the watch starts are added
// automatically. Rapid successive writes to one path are coalesced.
type Watcher struct {
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// New creates a watcher.
func New(opts ...Option) *Watcher {
	w := &Watcher{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch starts watching roots recursively. The returned channel is
// closed when ctx is cancelled or Close is called.
func (w *Watcher) Watch(ctx context.Context, roots []string) (<-chan driven.FileEvent, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	for _, root := range roots {
		if err := addTree(fw, root); err != nil {
			fw.Close()
			return nil, err
		}
	}

	w.mu.Lock()
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.watcher = fw
	w.mu.Unlock()

	out := make(chan driven.FileEvent)
	go w.run(ctx, fw, out)
	return out, nil
}

// Close stops the active watch.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, out chan<- driven.FileEvent) {
	defer close(out)
	defer fw.Close()

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if err := addTree(fw, event.Name); err != nil {
					logger.Warn("watching new directory %s: %v", event.Name, err)
				}
				continue
			}
			if !info.Mode().IsRegular() {
				continue
			}
			pending[event.Name] = time.Now().Add(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logger.Warn("file watcher error: %v", err)

		case now := <-ticker.C:
			for _, path := range due(pending, now) {
				select {
				case out <- driven.FileEvent{Path: path}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (w *Watcher) tick() time.Duration {
	t := w.debounce / 4
	if t < 10*time.Millisecond {
		t = 10 * time.Millisecond
	}
	return t
}

// due removes and returns the paths whose quiet period has elapsed.
func due(pending map[string]time.Time, now time.Time) []string {
	var ready []string
	for path, at := range pending {
		if !now.Before(at) {
			ready = append(ready, path)
			delete(pending, path)
		}
	}
	return ready
}

// addTree adds root and every directory beneath it.
func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path != root {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		logger.Debug("watching %s", path)
		return nil
	})
}

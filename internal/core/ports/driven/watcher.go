package driven

import "context"

// FileEvent reports a file that appeared or changed under a watched root.
type FileEvent struct {
	Path string
}

// FileWatcher streams file events until the context is cancelled.
type FileWatcher interface {
	// Watch starts watching roots and returns a channel of events.
	// The channel is closed when ctx is done or the watcher is closed.
	Watch(ctx context.Context, roots []string) (<-chan FileEvent, error)

	// Close stops the watcher.
	Close() error
}

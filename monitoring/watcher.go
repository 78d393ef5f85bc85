package monitoring

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher observes the model artifact on disk. The service never
// swaps models while running; when the file changes after load the watcher
// flips a sticky stale flag so status endpoints can report that a restart
// would pick up a newer artifact.
type ArtifactWatcher struct {
	path    string
	base    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	onStale func()

	mu    sync.RWMutex
	stale bool
	done  chan struct{}
	once  sync.Once
}

// NewArtifactWatcher watches the directory holding path. onStale fires once,
// on the first observed change; it may be nil.
func NewArtifactWatcher(path string, logger *zap.Logger, onStale func()) (*ArtifactWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors and trainers replace the
	// artifact by rename, which ends the watch on a direct file handle.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &ArtifactWatcher{
		path:    path,
		base:    filepath.Base(path),
		watcher: watcher,
		logger:  logger,
		onStale: onStale,
		done:    make(chan struct{}),
	}, nil
}

// Start runs the watch loop; call it in a goroutine.
func (w *ArtifactWatcher) Start() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.markStale(event.Op.String())
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("artifact watcher error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}

// Stop ends the watch loop.
func (w *ArtifactWatcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// Stale reports whether the artifact changed since the model was loaded.
func (w *ArtifactWatcher) Stale() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stale
}

// Path returns the watched artifact path.
func (w *ArtifactWatcher) Path() string {
	return w.path
}

func (w *ArtifactWatcher) markStale(op string) {
	w.mu.Lock()
	if w.stale {
		w.mu.Unlock()
		return
	}
	w.stale = true
	callback := w.onStale
	w.mu.Unlock()

	w.logger.Warn("model artifact changed on disk, restart to load it",
		zap.String("path", w.path), zap.String("op", op))
	if callback != nil {
		callback()
	}
}

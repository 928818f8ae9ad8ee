package watcher

import (
	"time"

	"github.com/lbakyl/rClone-chunking/pkg/models"
)

// debouncedSend delays fn until the path has been quiet for 500ms, so a
// file being written in bursts triggers a single sync run instead of one
// per write.
func (w *Watcher) debouncedSend(path string, fn func()) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debouncer[path]; exists {
		timer.Stop()
	}

	w.debouncer[path] = time.AfterFunc(500*time.Millisecond, func() {
		fn()
		w.debounceMu.Lock()
		delete(w.debouncer, path)
		w.debounceMu.Unlock()
	})
}

// WatchedDirs returns how many directories are currently being watched.
func (w *Watcher) WatchedDirs() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.watchedDirs)
}

func (w *Watcher) Changes() <-chan models.FileEvent {
	return w.changeChan
}

func (w *Watcher) Errors() <-chan error {
	return w.errorChan
}

func (w *Watcher) Close() error {
	w.cancel()
	return w.fsNotifyWatcher.Close()
}

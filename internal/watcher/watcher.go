package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/lbakyl/rClone-chunking/internal/chunk"
	"github.com/lbakyl/rClone-chunking/pkg/models"
)

// Watcher monitors the source tree and emits debounced change events that
// trigger a sync run. Events under chunk directories are dropped: the tool
// writes those itself and must not retrigger on its own output.
type Watcher struct {
	fsNotifyWatcher *fsnotify.Watcher
	watchedDirs     map[string]bool
	changeChan      chan models.FileEvent
	errorChan       chan error
	ctx             context.Context
	cancel          context.CancelFunc
	log             *zap.SugaredLogger
	mu              sync.RWMutex
	debouncer       map[string]*time.Timer
	debounceMu      sync.Mutex
}

func NewWatcher(log *zap.SugaredLogger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		fsNotifyWatcher: fsWatcher,
		watchedDirs:     make(map[string]bool),
		changeChan:      make(chan models.FileEvent),
		errorChan:       make(chan error, 10),
		ctx:             ctx,
		cancel:          cancel,
		log:             log,
		debouncer:       make(map[string]*time.Timer),
	}, nil
}

// AddWatch registers path and every directory below it, chunk directories
// excepted.
func (w *Watcher) AddWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return filepath.Walk(path, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if chunk.IsSetDir(info.Name()) {
				return filepath.SkipDir
			}
			if err := w.fsNotifyWatcher.Add(walkPath); err != nil {
				return err
			}
			w.watchedDirs[walkPath] = true
			w.log.Debugw("watching directory", "path", walkPath)
		}
		return nil
	})
}

func (w *Watcher) Start() {
	go w.handleEvents()
}

func (w *Watcher) handleEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsNotifyWatcher.Events:
			if !ok {
				return
			}
			w.processEvent(event)
		case err, ok := <-w.fsNotifyWatcher.Errors:
			if !ok {
				return
			}
			w.errorChan <- err
		}
	}
}

func (w *Watcher) processEvent(event fsnotify.Event) {
	if insideSetDir(event.Name) {
		return
	}

	// New directories must be picked up so files created inside them later
	// still produce events.
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.AddWatch(event.Name); err != nil {
				w.log.Warnw("cannot watch new directory", "path", event.Name, "error", err)
			}
		}
	}

	w.debouncedSend(event.Name, func() {
		var operation string
		switch {
		case event.Op&fsnotify.Create == fsnotify.Create:
			operation = "CREATE"
		case event.Op&fsnotify.Write == fsnotify.Write:
			operation = "MODIFY"
		case event.Op&fsnotify.Remove == fsnotify.Remove:
			operation = "DELETE"
		default:
			return
		}
		select {
		case w.changeChan <- models.FileEvent{
			Path:      event.Name,
			Operation: operation,
			Timestamp: time.Now(),
		}:
		case <-w.ctx.Done():
			return
		}
	})
}

// insideSetDir reports whether any element of the path is a chunk directory.
func insideSetDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if chunk.IsSetDir(part) {
			return true
		}
	}
	return false
}

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/sho7650/content-rotation/internal/logger"
)

// DefaultDebounceDelay collapses the burst of events an editor save produces
const DefaultDebounceDelay = 100 * time.Millisecond

// Watcher calls its handler once per burst of changes to a single file.
// The parent directory is watched so that rename-on-save editors are seen.
type Watcher struct {
	path          string
	debounceDelay time.Duration
	handler       func()
	log           logrus.FieldLogger

	watcher *fsnotify.Watcher
	timer   *time.Timer
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewWatcher creates a stopped watcher for path
func NewWatcher(path string, debounceDelay time.Duration, handler func()) *Watcher {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Watcher{
		path:          filepath.Clean(path),
		debounceDelay: debounceDelay,
		handler:       handler,
		log:           logger.Get("config"),
	}
}

// Start begins the file watching process
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return fmt.Errorf("watcher already started for %s", w.path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to add watch path %s: %w", filepath.Dir(w.path), err)
	}

	w.watcher = watcher
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go w.watchLoop(ctx, watcher, w.done)
	return nil
}

// Stop halts the file watching process and cancels a pending reload
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return nil
	}
	w.cancel()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	watcher, done := w.watcher, w.done
	w.watcher = nil
	w.mu.Unlock()

	err := watcher.Close()
	<-done
	return err
}

// watchLoop is the main event processing loop
func (w *Watcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.processEvent(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("Config watcher error")
		}
	}
}

// processEvent debounces events for the watched file
func (w *Watcher) processEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		w.log.WithFields(logrus.Fields{"path": w.path, "op": event.Op.String()}).Debug("Config file changed")
		w.handler()
	})
}

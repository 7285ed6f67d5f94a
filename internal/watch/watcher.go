// Package watch re-runs the pipeline when a rule-set or environment file changes.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"rasch/internal/logging"
	"rasch/internal/pipeline"
)

// Handler is called once per settled change with the changed file.
type Handler func(ctx context.Context, path string)

// Watcher watches directories for .mg and .yaml changes and calls a handler
// once a file has been quiet for the debounce window.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dirs        []string
	onChange    Handler
	logger      *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	FilesCreated  int
	FilesModified int
	FilesDeleted  int
	Triggered     int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must be quiet before the handler runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounceDur = d }
}

// New creates a watcher over dirs. Nothing is watched until Start.
func New(dirs []string, onChange Handler, logger *zap.Logger, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:     fw,
		dirs:        dirs,
		onChange:    onChange,
		logger:      logging.For(logger, logging.CategoryWatch),
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds the directories and begins the event loop in a goroutine.
// A directory that cannot be watched is an error.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.logger.Info("watching directory", zap.String("dir", dir))
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

// Stop ends the event loop and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		if err := w.watcher.Close(); err != nil {
			w.logger.Debug("close idle watcher", zap.Error(err))
		}
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("error closing watcher", zap.Error(err))
	}
	w.logger.Info("stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

func watched(path string) bool {
	switch filepath.Ext(path) {
	case ".mg", ".yaml":
		return true
	}
	return false
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !watched(event.Name) {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}
	w.logger.Debug("file event", zap.String("type", eventType), zap.String("path", event.Name))

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType
	switch eventType {
	case "create":
		w.stats.FilesCreated++
	case "modify":
		w.stats.FilesModified++
	case "delete", "rename":
		w.stats.FilesDeleted++
	}
	w.debounceMap[event.Name] = time.Now()
}

func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		if _, err := os.Stat(path); err != nil {
			w.logger.Debug("file gone, skipping", zap.String("path", path))
			continue
		}
		w.mu.Lock()
		w.stats.Triggered++
		w.mu.Unlock()
		w.onChange(ctx, path)
	}
}

// Stats returns the current watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}

// Rerun returns a handler that runs the pipeline for the changed file. A
// changed rule-set runs against environment; a changed environment runs
// with encoding. The outcome goes to onResult when it is set.
func Rerun(runner *pipeline.Runner, encoding, environment string, limit int, logger *zap.Logger, onResult func(*pipeline.Result)) Handler {
	logger = logging.For(logger, logging.CategoryWatch)
	return func(ctx context.Context, path string) {
		req := pipeline.Request{Encoding: encoding, Environment: environment, Limit: limit}
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		switch filepath.Ext(path) {
		case ".mg":
			req.Encoding = stem
		case ".yaml":
			req.Environment = stem
		}

		res, err := runner.Run(ctx, req)
		if err != nil {
			logger.Error("rerun failed",
				zap.String("encoding", req.Encoding),
				zap.String("environment", req.Environment),
				zap.Error(err))
			return
		}
		logger.Info("rerun finished",
			zap.String("encoding", req.Encoding),
			zap.String("environment", req.Environment),
			zap.String("state", string(res.State)))
		if onResult != nil {
			onResult(res)
		}
	}
}

// Package watch reformats Python files as they are saved.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"straitjacket/internal/logging"
	"straitjacket/internal/runner"
)

// Formatter formats one file and reports whether it changed.
type Formatter interface {
	FormatFile(ctx context.Context, path string) (bool, error)
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Formatted     int
	Unchanged     int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// Watcher watches directory trees and feeds settled writes to a Formatter.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	formatter   Formatter
	matcher     *runner.Matcher
	roots       []string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	now         func() time.Time
	log         *zap.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	closed      bool

	stats Stats
}

// New creates a watcher over roots. Files are selected with m, and a
// file is formatted once it has been quiet for debounce.
func New(roots []string, f Formatter, m *runner.Matcher, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs := make([]string, 0, len(roots))
	for _, root := range roots {
		a, err := filepath.Abs(root)
		if err != nil {
			fw.Close()
			return nil, err
		}
		abs = append(abs, a)
	}

	return &Watcher{
		watcher:     fw,
		formatter:   f,
		matcher:     m,
		roots:       abs,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		now:         time.Now,
		log:         logging.For(logger, logging.CategoryWatch),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start adds every non-excluded directory under the roots and begins
// processing events in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.closed {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := w.addTree(root, root); err != nil {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return err
		}
	}
	w.log.Info("watching", zap.Strings("roots", w.roots), zap.Int("dirs", len(w.watcher.WatchList())))

	go w.run(ctx)
	return nil
}

// Stop ends event processing and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	wasRunning := w.running
	w.running = false
	w.closed = true
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.log.Error("failed to close watcher", zap.Error(err))
	}
	w.log.Info("stopped")
}

// Stats returns a snapshot of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// WatchedDirs lists the directories currently being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}

func (w *Watcher) addTree(root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.matcher.ExcludesDir(root, path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.log.Debug("watching directory", zap.String("dir", path))
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
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
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processDebounced(ctx)
		}
	}
}

// rootOf returns the watch root containing path.
func (w *Watcher) rootOf(path string) (string, bool) {
	for _, root := range w.roots {
		if rel, err := filepath.Rel(root, path); err == nil && rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel) {
			return root, true
		}
	}
	return "", false
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:2] == ".." && os.IsPathSeparator(rel[2])
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	root, ok := w.rootOf(event.Name)
	if !ok {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.matcher.ExcludesDir(root, event.Name) {
				if err := w.addTree(root, event.Name); err != nil {
					w.log.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
				}
			}
			return
		}
	}
	if !w.matcher.Match(root, event.Name) {
		return
	}

	w.log.Debug("event", zap.String("path", event.Name), zap.Stringer("op", event.Op))

	w.mu.Lock()
	now := w.now()
	w.stats.Events++
	w.stats.LastEventTime = now
	w.stats.LastEventPath = event.Name
	w.debounceMap[event.Name] = now
	w.mu.Unlock()
}

// processDebounced formats files whose last event is older than the
// debounce window.
func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := w.now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		if ctx.Err() != nil {
			return
		}
		w.format(ctx, path)
	}
}

func (w *Watcher) format(ctx context.Context, path string) {
	changed, err := w.formatter.FormatFile(ctx, path)

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case err != nil:
		if os.IsNotExist(err) {
			return
		}
		w.stats.Errors++
		w.log.Error("cannot format", zap.String("path", path), zap.Error(err))
	case changed:
		w.stats.Formatted++
		w.log.Info("reformatted", zap.String("path", path))
	default:
		w.stats.Unchanged++
	}
}

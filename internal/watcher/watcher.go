// Package watcher watches the documentation archive on disk and
// triggers an index rebuild once a change has settled.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	helperrors "github.com/onec-help/onechelp/internal/errors"
)

// DefaultWindow is the debounce window applied to archive changes. A
// vendor update copies the file in chunks; the rebuild starts only
// after writes stop for the whole window.
const DefaultWindow = 2 * time.Second

// TriggerFunc starts a rebuild.
type TriggerFunc func(ctx context.Context) error

// Watcher debounces change events for a single archive file.
type Watcher struct {
	path    string
	window  time.Duration
	trigger TriggerFunc
	logger  *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher for the archive at path.
func New(path string, window time.Duration, trigger TriggerFunc, logger *slog.Logger) *Watcher {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:    filepath.Clean(path),
		window:  window,
		trigger: trigger,
		logger:  logger,
	}
}

// Run watches until the context is cancelled. The parent directory is
// watched rather than the file itself: replacing the archive by rename
// keeps events flowing where a file watch would go stale.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return helperrors.InternalError("cannot create file watcher", err)
	}
	defer fw.Close()
	defer w.stopTimer()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return helperrors.InternalError("cannot watch archive directory", err)
	}

	w.logger.Info("watching archive", slog.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("archive changed", slog.String("op", ev.Op.String()))
			w.schedule(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// schedule (re)arms the debounce timer; every new event pushes the
// rebuild further out until writes settle.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, func() {
		w.fire(ctx)
	})
}

// fire triggers the rebuild. A busy job slot re-arms the timer so the
// settled change is not lost.
func (w *Watcher) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	err := w.trigger(ctx)
	if err == nil {
		w.logger.Info("rebuild triggered by archive change", slog.String("path", w.path))
		return
	}
	if helperrors.GetCode(err) == helperrors.ErrCodeRebuildBusy {
		w.logger.Info("rebuild slot busy, retrying after window")
		w.schedule(ctx)
		return
	}
	w.logger.Error("rebuild trigger failed", slog.String("error", err.Error()))
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

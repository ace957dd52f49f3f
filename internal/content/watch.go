package content

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 500 * time.Millisecond

// Watcher serves the current Index and rebuilds it when the spreadsheets in
// its directory change. Each Index stays immutable; a reload swaps in a new
// one atomically.
type Watcher struct {
	dir      string
	opts     Options
	logger   *slog.Logger
	debounce time.Duration
	onReload func(ok bool)

	current atomic.Pointer[Index]

	mu    sync.Mutex
	timer *time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long to wait after the last change before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook is called after every reload attempt.
func WithReloadHook(fn func(ok bool)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher serves initial until the first change in dir.
func NewWatcher(dir string, initial *Index, opts Options, logger *slog.Logger, options ...WatcherOption) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		dir:      dir,
		opts:     opts,
		logger:   logger,
		debounce: defaultReloadDebounce,
	}
	for _, opt := range options {
		opt(w)
	}
	if initial == nil {
		initial = New(Data{}, opts)
	}
	w.current.Store(initial)
	return w
}

// Index returns the Index currently in service.
func (w *Watcher) Index() *Index {
	return w.current.Load()
}

// Reload rebuilds the Index from disk. If any present file fails to load,
// the previous Index stays in service.
func (w *Watcher) Reload() error {
	ix, err := Load(w.dir, w.opts, w.logger)
	if err != nil {
		w.logger.Warn("content reload failed, keeping previous index", slog.Any("error", err))
		w.notify(false)
		return err
	}

	w.current.Store(ix)
	stats := ix.Stats()
	w.logger.Info("content reloaded",
		slog.Int("signs", stats.Signs),
		slog.Int("houses", stats.Houses),
		slog.Int("degrees", stats.Degrees),
	)
	w.notify(true)
	return nil
}

// Run watches the directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching content directory", slog.String("dir", w.dir))

	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isWorkbookEvent(ev) {
				continue
			}
			w.logger.Debug("content file changed",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
			)
			w.scheduleReload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("content watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		_ = w.Reload()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) notify(ok bool) {
	if w.onReload != nil {
		w.onReload(ok)
	}
}

// isWorkbookEvent filters for changes to .xlsx files, ignoring the "~$"
// lock files spreadsheet editors leave behind.
func isWorkbookEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, "~$") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/papapumpkin/tptmodel/internal/project"
)

// DefaultDebounce is how long a file must stay quiet before it is
// re-imported.
const DefaultDebounce = 200 * time.Millisecond

// minTick bounds how often the debounce timer is polled.
const minTick = time.Millisecond

// Result is the outcome of one re-import.
type Result struct {
	Report Report
	Err    error
}

// Watcher re-applies a requirement document to a project every time the
// file is written or recreated.
type Watcher struct {
	Path    string
	Results <-chan Result

	results  chan Result
	done     chan struct{}
	stop     chan struct{}
	started  bool
	stopOnce sync.Once
	project  *project.Project
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger for watch errors.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher creates a watcher for the document at path.
func NewWatcher(path string, p *project.Project, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ingest: watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("ingest: %s: %w", path, err)
	}

	ch := make(chan Result, 16)
	w := &Watcher{
		Path:     abs,
		Results:  ch,
		results:  ch,
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
		project:  p,
		debounce: DefaultDebounce,
		logger:   slog.New(slog.DiscardHandler),
		watcher:  fw,
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Start watches the document's directory. Editors often replace a file
// rather than write it, so the directory is watched, not the file.
func (w *Watcher) Start(ctx context.Context) error {
	if w.started {
		return fmt.Errorf("ingest: watch %s: already started", w.Path)
	}
	if err := w.watcher.Add(filepath.Dir(w.Path)); err != nil {
		return fmt.Errorf("ingest: watch %s: %w", w.Path, err)
	}
	w.started = true
	go w.loop(ctx)
	return nil
}

// Stop closes the watcher and the Results channel. It is safe to call
// without Start, and more than once. Stop must not run concurrently with
// Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.watcher.Close()
		if w.started {
			<-w.done
		}
		close(w.results)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var pending time.Time
	ticker := time.NewTicker(max(w.debounce/2, minTick))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.Path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				pending = time.Now()
			}

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < w.debounce {
				continue
			}
			pending = time.Time{}
			w.reimport(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "path", w.Path, "error", err)
		}
	}
}

func (w *Watcher) reimport(ctx context.Context) {
	var res Result
	doc, err := Load(w.Path)
	if err != nil {
		res.Err = err
	} else {
		res.Report, res.Err = Apply(ctx, w.project, doc, w.Path)
	}
	if res.Err != nil {
		w.logger.Warn("re-import failed", "path", w.Path, "error", res.Err)
	}

	select {
	case w.results <- res:
	case <-w.stop:
	case <-ctx.Done():
	}
}

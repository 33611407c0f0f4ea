// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"instagent/internal/issue"
)

// DefaultDebounce coalesces editor save bursts (write + chmod + rename)
// into a single reload.
const DefaultDebounce = 500 * time.Millisecond

type (
	// WatchOptions configures Watch.
	WatchOptions struct {
		// Debounce is the quiet period before onChange fires.
		// Zero means DefaultDebounce.
		Debounce time.Duration
	}

	watcher struct {
		path     string
		debounce time.Duration
		onChange func()

		mu      sync.Mutex
		timer   *time.Timer
		running atomic.Bool
	}
)

// Watch invokes onChange after the config file at path changes, debounced.
// The file's directory is watched rather than the file itself so that
// editors which replace files via rename keep triggering events. Watch
// blocks until ctx is canceled.
func Watch(ctx context.Context, path string, onChange func(), opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("watch config file").
			WithResource(path).
			Wrap(err).
			BuildError()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("create file watcher").
			WithResource(abs).
			WithSuggestion("Check inotify limits (fs.inotify.max_user_watches)").
			Wrap(err).
			BuildError()
	}
	defer fsw.Close() //nolint:errcheck // best-effort cleanup

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return issue.NewErrorContext().
			WithOperation("watch config directory").
			WithResource(filepath.Dir(abs)).
			WithSuggestion("Check the directory exists").
			Wrap(err).
			BuildError()
	}

	w := &watcher{path: abs, debounce: opts.Debounce, onChange: onChange}
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				return issue.NewErrorContext().
					WithOperation("watch config file").
					WithResource(abs).
					Wrap(err).
					BuildError()
			}
		}
	}
}

// handle schedules a debounced fire for events touching the config file.
func (w *watcher) handle(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

// fire runs onChange unless a previous invocation is still in flight.
func (w *watcher) fire() {
	w.mu.Lock()
	w.timer = nil
	w.mu.Unlock()

	if !w.running.CompareAndSwap(false, true) {
		return
	}
	defer w.running.Store(false)

	w.onChange()
}

func (w *watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

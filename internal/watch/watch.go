// Package watch regenerates build artefacts when Unreal build rules change.
//
// A Watcher observes a project's Source tree (and the .uproject beside it)
// with fsnotify. Changes to files matching the configured patterns, by
// default target and module rules, are debounced into one callback that
// receives every changed path since the previous callback.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/dshills/uebuild/internal/logging"
	"github.com/dshills/uebuild/internal/unreal/probe"
)

// Options configures a Watcher.
type Options struct {
	// Patterns match base names of files that trigger the callback.
	Patterns []string

	// Debounce is the quiet period before the callback runs.
	Debounce time.Duration

	// ExcludeDirs are directory names never watched.
	ExcludeDirs []string

	Logger logrus.FieldLogger
}

// DefaultOptions returns options that watch target, module and project
// descriptors.
func DefaultOptions() Options {
	return Options{
		Patterns:    []string{"*.Target.cs", "*.Build.cs", "*.uproject", "*.uplugin"},
		Debounce:    500 * time.Millisecond,
		ExcludeDirs: probe.DefaultExcludeDirs,
	}
}

// Watcher watches directory trees for build rule changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	opts     Options
	logger   logrus.FieldLogger
	debounce *Debouncer
	onChange func(paths []string)

	mu      sync.Mutex
	changed map[string]struct{}
	dirs    map[string]bool
}

// New creates a watcher. onChange runs on a timer goroutine.
func New(opts Options, onChange func(paths []string)) (*Watcher, error) {
	if len(opts.Patterns) == 0 {
		opts.Patterns = DefaultOptions().Patterns
	}
	for _, p := range opts.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("watch pattern %q: %w", p, err)
		}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		opts:     opts,
		logger:   opts.Logger.WithField("component", "watch"),
		onChange: onChange,
		changed:  make(map[string]struct{}),
		dirs:     make(map[string]bool),
	}
	w.debounce = NewDebouncer(opts.Debounce, w.fire)
	return w, nil
}

// AddTree watches root and every directory below it that is not excluded.
func (w *Watcher) AddTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && slices.Contains(w.opts.ExcludeDirs, d.Name()) {
			return filepath.SkipDir
		}
		return w.addDir(path)
	})
}

// AddDir watches a single directory without descending into it.
func (w *Watcher) AddDir(dir string) error {
	return w.addDir(dir)
}

func (w *Watcher) addDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dirs[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.dirs[dir] = true
	return nil
}

// Dirs returns the watched directories in lexical order.
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirs := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("event queue overflow; treating as a change")
				w.record("")
				continue
			}
			w.logger.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) && probe.IsDir(ev.Name) {
		if !slices.Contains(w.opts.ExcludeDirs, filepath.Base(ev.Name)) {
			if err := w.AddTree(ev.Name); err != nil {
				w.logger.WithError(err).Debug("cannot watch new directory")
			}
		}
		return
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return
	}
	if !w.matches(filepath.Base(ev.Name)) {
		return
	}

	w.logger.WithFields(logrus.Fields{"path": ev.Name, "op": ev.Op.String()}).Debug("build rule changed")
	w.record(ev.Name)
}

func (w *Watcher) matches(name string) bool {
	for _, p := range w.opts.Patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) record(path string) {
	w.mu.Lock()
	if path != "" {
		w.changed[path] = struct{}{}
	}
	w.mu.Unlock()
	w.debounce.Call()
}

func (w *Watcher) fire() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.changed))
	for p := range w.changed {
		paths = append(paths, p)
	}
	w.changed = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(paths)
	if w.onChange != nil {
		w.onChange(paths)
	}
}

func (w *Watcher) close() {
	w.debounce.Cancel()
	_ = w.fsw.Close()
}

package disk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/resilience"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
)

// DefaultBatchDelay is how long change events are coalesced before delivery
const DefaultBatchDelay = 75 * time.Millisecond

// FSWatcher implements Watcher with fsnotify. fsnotify is not recursive, so
// recursive subscriptions register every directory below their root and
// pick up directories created later.
type FSWatcher struct {
	fs    *fsnotify.Watcher
	delay time.Duration

	mu   sync.Mutex
	subs map[*subscription]struct{}
	refs map[string]int

	changes chan []Change
	errors  chan error
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewFSWatcher starts a watcher that delivers batches every delay
func NewFSWatcher(delay time.Duration) (*FSWatcher, error) {
	if delay <= 0 {
		delay = DefaultBatchDelay
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &FSWatcher{
		fs:      fw,
		delay:   delay,
		subs:    make(map[*subscription]struct{}),
		refs:    make(map[string]int),
		changes: make(chan []Change, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// FSWatcherFactory returns a factory creating FSWatchers
func FSWatcherFactory(delay time.Duration) WatcherFactory {
	return func() (Watcher, error) {
		return NewFSWatcher(delay)
	}
}

// GuardedFactory wraps factory with a circuit breaker. While the breaker is
// open new watchers fail with CodeUnavailable without touching the host.
func GuardedFactory(factory WatcherFactory, breaker *resilience.Breaker) WatcherFactory {
	return func() (Watcher, error) {
		var w Watcher
		err := breaker.Do(func() error {
			var err error
			w, err = factory()
			return err
		})
		if errors.Is(err, resilience.ErrOpen) {
			return nil, &Error{Code: CodeUnavailable, Err: err}
		}
		return w, err
	}
}

// Changes returns the stream of change batches. It is closed after Close.
func (w *FSWatcher) Changes() <-chan []Change { return w.changes }

// Errors returns the stream of watcher errors. It is closed after Close.
func (w *FSWatcher) Errors() <-chan error { return w.errors }

// Watch subscribes to changes of path
func (w *FSWatcher) Watch(path string, opts WatchOptions) (io.Closer, error) {
	for _, pattern := range opts.Excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, Wrap(path, err)
	}

	sub := &subscription{
		w:         w,
		root:      path,
		recursive: opts.Recursive && info.IsDir(),
		excludes:  opts.Excludes,
	}

	dirs := []string{path}
	if sub.recursive {
		dirs = append(dirs, sub.subdirectories(path)...)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
		return nil, &Error{Code: CodeUnavailable, Path: path, Err: fs.ErrClosed}
	default:
	}

	if err := w.addLocked(path); err != nil {
		return nil, Wrap(path, err)
	}
	sub.dirs = append(sub.dirs, path)
	for _, dir := range dirs[1:] {
		// Subdirectories may disappear between the walk and the add
		if err := w.addLocked(dir); err == nil {
			sub.dirs = append(sub.dirs, dir)
		}
	}
	w.subs[sub] = struct{}{}
	return sub, nil
}

// Close stops the watcher and all subscriptions. It is idempotent.
func (w *FSWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()

		w.mu.Lock()
		w.subs = make(map[*subscription]struct{})
		w.refs = make(map[string]int)
		w.mu.Unlock()
	})
	return err
}

func (w *FSWatcher) addLocked(path string) error {
	if w.refs[path] == 0 {
		if err := w.fs.Add(path); err != nil {
			return err
		}
	}
	w.refs[path]++
	return nil
}

func (w *FSWatcher) removeLocked(path string) {
	n, ok := w.refs[path]
	if !ok {
		return
	}
	if n > 1 {
		w.refs[path] = n - 1
		return
	}
	delete(w.refs, path)
	// The path may already be gone; fsnotify drops it on its own then
	_ = w.fs.Remove(path)
}

// forgetLocked drops the registrations of a deleted directory and
// everything below it. The kernel has already released them, so a
// recreated directory must be added again.
func (w *FSWatcher) forgetLocked(path string) {
	prefix := path + string(filepath.Separator)
	gone := func(dir string) bool {
		return dir == path || strings.HasPrefix(dir, prefix)
	}

	found := false
	for dir := range w.refs {
		if gone(dir) {
			delete(w.refs, dir)
			_ = w.fs.Remove(dir)
			found = true
		}
	}
	if !found {
		return
	}
	for sub := range w.subs {
		kept := sub.dirs[:0]
		for _, dir := range sub.dirs {
			if !gone(dir) {
				kept = append(kept, dir)
			}
		}
		sub.dirs = kept
	}
}

func (w *FSWatcher) run() {
	defer w.wg.Done()
	defer close(w.changes)
	defer close(w.errors)

	var (
		pending []Change
		timer   *time.Timer
		flush   <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			change, ok := w.translate(ev)
			if !ok {
				continue
			}
			pending = append(pending, change)
			if flush == nil {
				timer = time.NewTimer(w.delay)
				flush = timer.C
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		case <-flush:
			batch := Coalesce(pending)
			pending, flush, timer = nil, nil, nil
			if len(batch) == 0 {
				continue
			}
			select {
			case w.changes <- batch:
			case <-w.done:
				return
			}
		}
	}
}

// translate maps an fsnotify event to a Change if any subscription wants it
func (w *FSWatcher) translate(ev fsnotify.Event) (Change, bool) {
	var ct ChangeType
	switch {
	case ev.Has(fsnotify.Create):
		ct = ChangeAdded
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		ct = ChangeDeleted
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		ct = ChangeUpdated
	default:
		return Change{}, false
	}

	path := filepath.Clean(ev.Name)
	var created os.FileInfo
	if ct == ChangeAdded {
		created, _ = os.Stat(path)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if ct == ChangeDeleted {
		w.forgetLocked(path)
	}

	matched := false
	for sub := range w.subs {
		if !sub.matches(path) {
			continue
		}
		matched = true
		if created != nil && created.IsDir() && sub.recursive {
			for _, dir := range append([]string{path}, sub.subdirectories(path)...) {
				if err := w.addLocked(dir); err == nil {
					sub.dirs = append(sub.dirs, dir)
				}
			}
		}
	}
	return Change{Type: ct, Path: path}, matched
}

type subscription struct {
	w         *FSWatcher
	root      string
	recursive bool
	excludes  []string
	dirs      []string
	once      sync.Once
}

// Close releases the subscription's registrations. It is idempotent.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.w.mu.Lock()
		defer s.w.mu.Unlock()
		delete(s.w.subs, s)
		for _, dir := range s.dirs {
			s.w.removeLocked(dir)
		}
		s.dirs = nil
	})
	return nil
}

func (s *subscription) matches(path string) bool {
	if path == s.root {
		return true
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if s.excluded(path, rel) {
		return false
	}
	if s.recursive {
		return true
	}
	return !strings.ContainsRune(rel, filepath.Separator)
}

func (s *subscription) excluded(path, rel string) bool {
	abs := filepath.ToSlash(path)
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.excludes {
		if ok, _ := doublestar.Match(pattern, abs); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// subdirectories lists every non-excluded directory below root
func (s *subscription) subdirectories(root string) []string {
	var (
		mu   sync.Mutex
		dirs []string
	)
	conf := fastwalk.Config{Follow: false}
	_ = fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == root {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(s.root, p)
		if s.excluded(p, rel) {
			return fs.SkipDir
		}
		mu.Lock()
		dirs = append(dirs, p)
		mu.Unlock()
		return nil
	})
	return dirs
}

// Coalesce folds consecutive events on the same path: added then deleted
// cancels out, deleted then added becomes an update, and an update after
// an add stays an add.
func Coalesce(changes []Change) []Change {
	index := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	dropped := make(map[int]bool)

	for _, c := range changes {
		i, seen := index[c.Path]
		if !seen || dropped[i] {
			index[c.Path] = len(out)
			out = append(out, c)
			continue
		}

		prev := out[i].Type
		switch {
		case prev == ChangeAdded && c.Type == ChangeDeleted:
			dropped[i] = true
		case prev == ChangeDeleted && c.Type == ChangeAdded:
			out[i].Type = ChangeUpdated
		case prev == ChangeAdded && c.Type == ChangeUpdated:
		default:
			out[i].Type = c.Type
		}
	}

	result := out[:0]
	for i, c := range out {
		if !dropped[i] {
			result = append(result, c)
		}
	}
	return result
}

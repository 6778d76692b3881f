package watch

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/agent/internal/disk"
	"github.com/GriffinCanCode/AgentOS/agent/internal/shared/uri"
)

type fakeHandle struct {
	path   string
	closes atomic.Int32
}

func (h *fakeHandle) Close() error {
	h.closes.Add(1)
	return nil
}

type fakeWatcher struct {
	mu      sync.Mutex
	handles []*fakeHandle
	fail    error

	changes chan []disk.Change
	errs    chan error
	closes  atomic.Int32
	once    sync.Once
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		changes: make(chan []disk.Change, 8),
		errs:    make(chan error, 8),
	}
}

func (w *fakeWatcher) Watch(path string, opts disk.WatchOptions) (io.Closer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return nil, w.fail
	}
	h := &fakeHandle{path: path}
	w.handles = append(w.handles, h)
	return h, nil
}

func (w *fakeWatcher) Changes() <-chan []disk.Change { return w.changes }
func (w *fakeWatcher) Errors() <-chan error          { return w.errs }

func (w *fakeWatcher) Close() error {
	w.closes.Add(1)
	w.once.Do(func() {
		close(w.changes)
		close(w.errs)
	})
	return nil
}

func (w *fakeWatcher) handle(i int) *fakeHandle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handles[i]
}

func factoryFor(w *fakeWatcher) disk.WatcherFactory {
	return func() (disk.Watcher, error) { return w, nil }
}

var errFactory = errors.New("no watcher")

func uriFile(p string) uri.URI { return uri.File(p) }

func diskOpts() disk.WatchOptions { return disk.WatchOptions{} }

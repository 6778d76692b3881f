// Package watch partitions file watching by client session. Each Session
// exclusively owns one watch-capable resource and the subscriptions opened
// on it; a Registry creates sessions on first interest and disposes them on
// last.
package watch

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/GriffinCanCode/AgentOS/agent/internal/channel"
	"github.com/GriffinCanCode/AgentOS/agent/internal/disk"
	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agent/internal/remap"
	"github.com/GriffinCanCode/AgentOS/agent/internal/shared/uri"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateRequest reports a watch request id already in use
	ErrDuplicateRequest = errors.New("watch request already registered")

	// ErrSessionDisposed reports use of a session after DisposeAll
	ErrSessionDisposed = errors.New("watch session disposed")
)

// Event is one notification from a session's watcher: either a batch of
// changes or an error.
type Event struct {
	Changes []disk.Change
	Err     error
}

// Session owns the watch subscriptions of one client session
type Session struct {
	id       string
	watcher  disk.Watcher
	remapper *remap.Remapper
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu       sync.Mutex
	handles  map[int]io.Closer
	disposed bool

	listenersMu sync.Mutex
	listeners   map[int]func(Event)
	nextID      int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSession creates a session with a fresh watcher from factory
func NewSession(id string, factory disk.WatcherFactory, remapper *remap.Remapper, logger *zap.Logger, metrics *monitoring.Metrics) (*Session, error) {
	watcher, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create watcher for session %s: %w", id, err)
	}
	if remapper == nil {
		remapper = &remap.Remapper{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		id:        id,
		watcher:   watcher,
		remapper:  remapper,
		logger:    logger.With(zap.String("session", id)),
		metrics:   metrics,
		handles:   make(map[int]io.Closer),
		listeners: make(map[int]func(Event)),
		done:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.pump()
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Done is closed when the session starts disposing
func (s *Session) Done() <-chan struct{} { return s.done }

// AddWatch opens a subscription on resource under requestID. A duplicate
// requestID is rejected and leaves the existing subscription in place.
func (s *Session) AddWatch(requestID int, resource uri.URI, opts disk.WatchOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrSessionDisposed
	}
	if _, exists := s.handles[requestID]; exists {
		return fmt.Errorf("session %s request %d: %w", s.id, requestID, ErrDuplicateRequest)
	}

	local := s.remapper.Remap(resource)
	handle, err := s.watcher.Watch(local.FSPath(), opts)
	if err != nil {
		return err
	}
	s.handles[requestID] = handle
	s.metrics.AddWatchSubscriptions(1)

	s.logger.Debug("watch added",
		zap.Int("request", requestID),
		zap.String("path", local.FSPath()),
		zap.Bool("recursive", opts.Recursive))
	return nil
}

// RemoveWatch releases the subscription under requestID. An unknown id is a
// protocol violation and fails with channel.ErrNotFound.
func (s *Session) RemoveWatch(requestID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.handles[requestID]
	if !ok {
		return fmt.Errorf("session %s request %d: %w", s.id, requestID, channel.ErrNotFound)
	}
	err := handle.Close()
	delete(s.handles, requestID)
	s.metrics.AddWatchSubscriptions(-1)

	s.logger.Debug("watch removed", zap.Int("request", requestID))
	return err
}

// Len returns the number of open subscriptions
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// DisposeAll releases every subscription and the owned watcher. It returns
// once no further events will be delivered and is idempotent.
func (s *Session) DisposeAll() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	close(s.done)

	for requestID, handle := range s.handles {
		if err := handle.Close(); err != nil {
			s.logger.Warn("release watch failed", zap.Int("request", requestID), zap.Error(err))
		}
	}
	s.metrics.AddWatchSubscriptions(-len(s.handles))
	s.handles = make(map[int]io.Closer)
	s.mu.Unlock()

	if err := s.watcher.Close(); err != nil {
		s.logger.Warn("close watcher failed", zap.Error(err))
	}
	s.wg.Wait()
}

// OnEvent registers fn for every event of this session. fn runs on the
// session's delivery goroutine and must return promptly once Done is
// closed. The returned function unregisters it.
func (s *Session) OnEvent(fn func(Event)) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

func (s *Session) pump() {
	defer s.wg.Done()

	changes := s.watcher.Changes()
	errs := s.watcher.Errors()
	for changes != nil || errs != nil {
		select {
		case batch, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.emit(Event{Changes: batch})
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("watcher error", zap.Error(err))
			s.emit(Event{Err: err})
		}
	}
}

func (s *Session) emit(ev Event) {
	s.listenersMu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Package files implements the remote file system channel: file operations
// over the disk primitive and file watching partitioned by client session.
package files

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/agent/internal/channel"
	"github.com/GriffinCanCode/AgentOS/agent/internal/disk"
	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agent/internal/remap"
	"github.com/GriffinCanCode/AgentOS/agent/internal/shared/uri"
	"github.com/GriffinCanCode/AgentOS/agent/internal/watch"
	"go.uber.org/zap"
)

const (
	// ChannelName is the name clients address this channel by
	ChannelName = "remotefilesystem"

	// EventFileChange carries change batches and watcher errors for one
	// session
	EventFileChange = "filechange"

	// DefaultMaxReadSize is the largest read served when none is configured
	DefaultMaxReadSize = 64 << 20
)

// Options configures a Channel
type Options struct {
	Provider disk.Provider
	Watchers disk.WatcherFactory
	Remapper *remap.Remapper
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
	// MaxReadSize caps the length of a single read, zero uses DefaultMaxReadSize
	MaxReadSize int
}

// Channel dispatches file commands and owns the per-session watch registry
type Channel struct {
	disk     disk.Provider
	remapper *remap.Remapper
	maxRead  int
	sessions *watch.Registry[*watch.Session]
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// New creates a file channel
func New(opts Options) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	remapper := opts.Remapper
	if remapper == nil {
		remapper = &remap.Remapper{}
	}
	watchers := opts.Watchers
	if watchers == nil {
		watchers = disk.FSWatcherFactory(disk.DefaultBatchDelay)
	}

	maxRead := opts.MaxReadSize
	if maxRead <= 0 {
		maxRead = DefaultMaxReadSize
	}
	c := &Channel{
		disk:     opts.Provider,
		remapper: remapper,
		maxRead:  maxRead,
		logger:   logger.Named("files"),
		metrics:  opts.Metrics,
	}
	c.sessions = watch.NewRegistry(func(sessionID string) (*watch.Session, error) {
		return watch.NewSession(sessionID, watchers, remapper, c.logger, c.metrics)
	})
	c.sessions.OnSizeChange(c.metrics.SetWatchSessions)
	return c
}

// FileChange is one change event as sent to a client
type FileChange struct {
	Type     disk.ChangeType `json:"type"`
	Resource uri.URI         `json:"resource"`
}

// WatchError is a watcher failure forwarded as an event
type WatchError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Call executes a file command
func (c *Channel) Call(ctx context.Context, caller channel.Caller, command string, args channel.Args) (interface{}, error) {
	timer := monitoring.NewTimer(c.metrics, ChannelName, command)
	result, err := c.call(ctx, caller, command, args)
	code := ""
	if err != nil {
		code = channel.Code(err)
	}
	timer.Stop(code)
	return result, err
}

func (c *Channel) call(ctx context.Context, caller channel.Caller, command string, args channel.Args) (interface{}, error) {
	switch command {
	case "stat":
		path, err := c.path(caller, args, 0)
		if err != nil {
			return nil, err
		}
		return c.disk.Stat(ctx, path)

	case "open":
		path, err := c.path(caller, args, 0)
		if err != nil {
			return nil, err
		}
		var opts disk.OpenOptions
		if err := args.DecodeOptional(1, &opts); err != nil {
			return nil, err
		}
		return c.disk.Open(ctx, path, opts)

	case "close":
		var fd int
		if err := args.Decode(0, &fd); err != nil {
			return nil, err
		}
		return nil, c.disk.Close(ctx, fd)

	case "read":
		return c.read(ctx, args)

	case "write":
		return c.write(ctx, args)

	case "delete":
		path, err := c.path(caller, args, 0)
		if err != nil {
			return nil, err
		}
		var opts disk.DeleteOptions
		if err := args.DecodeOptional(1, &opts); err != nil {
			return nil, err
		}
		return nil, c.disk.Delete(ctx, path, opts)

	case "mkdir":
		path, err := c.path(caller, args, 0)
		if err != nil {
			return nil, err
		}
		return nil, c.disk.Mkdir(ctx, path)

	case "readdir":
		path, err := c.path(caller, args, 0)
		if err != nil {
			return nil, err
		}
		return c.disk.Readdir(ctx, path)

	case "rename", "copy":
		from, err := c.path(caller, args, 0)
		if err != nil {
			return nil, err
		}
		to, err := c.path(caller, args, 1)
		if err != nil {
			return nil, err
		}
		var opts disk.OverwriteOptions
		if err := args.DecodeOptional(2, &opts); err != nil {
			return nil, err
		}
		if command == "rename" {
			return nil, c.disk.Rename(ctx, from, to, opts)
		}
		return nil, c.disk.Copy(ctx, from, to, opts)

	case "watch":
		return nil, c.watch(caller, args)

	case "unwatch":
		return nil, c.unwatch(args)
	}

	return nil, fmt.Errorf("%w: %s", channel.ErrInvalidCommand, command)
}

// path decodes the resource at position i and resolves it to a local path
func (c *Channel) path(caller channel.Caller, args channel.Args, i int) (string, error) {
	var resource uri.URI
	if err := args.Decode(i, &resource); err != nil {
		return "", err
	}
	local := c.remapper.Remap(caller.Transformer().ToLocal(resource))
	return local.FSPath(), nil
}

func (c *Channel) read(ctx context.Context, args channel.Args) (ReadResult, error) {
	var (
		fd     int
		pos    int64
		length int
	)
	if err := decodeAll(args, &fd, &pos, &length); err != nil {
		return ReadResult{}, err
	}
	if length < 0 || pos < 0 {
		return ReadResult{}, fmt.Errorf("%w: negative position or length", channel.ErrInvalidArgument)
	}
	if length > c.maxRead {
		return ReadResult{}, fmt.Errorf("%w: read length %d exceeds %d bytes",
			channel.ErrInvalidArgument, length, c.maxRead)
	}

	buf := make([]byte, length)
	n, err := c.disk.Read(ctx, fd, pos, buf)
	if err != nil {
		return ReadResult{}, err
	}
	return ReadResult{Buffer: buf, BytesRead: n}, nil
}

func (c *Channel) write(ctx context.Context, args channel.Args) (int, error) {
	var (
		fd     int
		pos    int64
		data   []byte
		offset int
		length int
	)
	if err := decodeAll(args, &fd, &pos, &data, &offset, &length); err != nil {
		return 0, err
	}
	if pos < 0 || offset < 0 || length < 0 || offset > len(data) || length > len(data)-offset {
		return 0, fmt.Errorf("%w: offset %d length %d outside buffer of %d bytes",
			channel.ErrInvalidArgument, offset, length, len(data))
	}
	return c.disk.Write(ctx, fd, pos, data[offset:offset+length])
}

func (c *Channel) watch(caller channel.Caller, args channel.Args) error {
	var (
		sessionID string
		requestID int
		resource  uri.URI
	)
	if err := decodeAll(args, &sessionID, &requestID, &resource); err != nil {
		return err
	}
	var opts disk.WatchOptions
	if err := args.DecodeOptional(3, &opts); err != nil {
		return err
	}

	session, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: no listener for session %s", channel.ErrNotFound, sessionID)
	}
	return session.AddWatch(requestID, caller.Transformer().ToLocal(resource), opts)
}

func (c *Channel) unwatch(args channel.Args) error {
	var (
		sessionID string
		requestID int
	)
	if err := decodeAll(args, &sessionID, &requestID); err != nil {
		return err
	}

	session, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: session %s", channel.ErrNotFound, sessionID)
	}
	return session.RemoveWatch(requestID)
}

// Listen attaches a listener to a session's change events. The first
// listener of a session creates its watch session; when the last one
// detaches the session and all its subscriptions are disposed.
func (c *Channel) Listen(ctx context.Context, caller channel.Caller, event string, args channel.Args) (<-chan interface{}, error) {
	if event != EventFileChange {
		return nil, fmt.Errorf("%w: event %s", channel.ErrInvalidCommand, event)
	}
	var sessionID string
	if err := args.Decode(0, &sessionID); err != nil {
		return nil, err
	}

	session, release, err := c.sessions.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	c.metrics.AddChannelListener(ChannelName, event, 1)

	// Addresses are translated for the listening caller
	transformer := caller.Transformer()
	out := make(chan interface{}, 16)
	var (
		mu     sync.RWMutex
		closed bool
	)

	remove := session.OnEvent(func(ev watch.Event) {
		payload, kind, count := c.payload(ev, transformer)

		mu.RLock()
		defer mu.RUnlock()
		if closed {
			return
		}
		select {
		case out <- payload:
			c.metrics.RecordWatchEvents(kind, count)
		case <-ctx.Done():
		case <-session.Done():
		}
	})

	go func() {
		<-ctx.Done()
		remove()
		release()
		c.metrics.AddChannelListener(ChannelName, event, -1)

		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

func (c *Channel) payload(ev watch.Event, transformer uri.Transformer) (interface{}, string, int) {
	if ev.Err != nil {
		return WatchError{Type: "error", Message: ev.Err.Error()}, "error", 1
	}
	changes := make([]FileChange, len(ev.Changes))
	for i, change := range ev.Changes {
		changes[i] = FileChange{
			Type:     change.Type,
			Resource: transformer.ToRemote(uri.File(change.Path)),
		}
	}
	return changes, "change", len(changes)
}

// Sessions returns the number of live watch sessions
func (c *Channel) Sessions() int {
	return c.sessions.Len()
}

// Dispose tears down every watch session
func (c *Channel) Dispose() {
	c.sessions.DisposeAll()
}

func decodeAll(args channel.Args, targets ...interface{}) error {
	for i, target := range targets {
		if err := args.Decode(i, target); err != nil {
			return err
		}
	}
	return nil
}

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/agent/internal/channel"
	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrInternal reports a call that failed unexpectedly inside the server
var ErrInternal = errors.New("internal error")

// Conn is a message-oriented connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// Server routes frames to registered channels
type Server struct {
	mu       sync.RWMutex
	channels map[string]channel.ServerChannel
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewServer creates a server with no channels
func NewServer(logger *zap.Logger, metrics *monitoring.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		channels: make(map[string]channel.ServerChannel),
		logger:   logger.Named("rpc"),
		metrics:  metrics,
	}
}

// Register exposes ch under name, replacing any previous channel
func (s *Server) Register(name string, ch channel.ServerChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[name] = ch
}

// Channels returns the registered channel names in order
func (s *Server) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) lookup(name string) (channel.ServerChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown channel %q", channel.ErrInvalidCommand, name)
	}
	return ch, nil
}

// ServeConn reads frames until the connection fails or ctx is done. Every
// call runs in its own goroutine; listeners stay attached until disposed or
// the connection ends. ServeConn returns after all of them have finished.
func (s *Server) ServeConn(ctx context.Context, conn Conn, caller channel.Caller) error {
	ctx, cancel := context.WithCancel(ctx)
	c := &connection{
		server:    s,
		conn:      conn,
		caller:    caller,
		listeners: make(map[int64]context.CancelFunc),
		logger:    s.logger.With(zap.String("connection", caller.ConnectionID)),
	}
	defer func() {
		cancel()
		c.wg.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isClosed(err) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		var req Request
		if err := sonic.Unmarshal(data, &req); err != nil {
			c.writeError(0, fmt.Errorf("%w: malformed frame: %v", channel.ErrInvalidArgument, err))
			continue
		}
		s.metrics.RecordWSMessage("in", req.Type)

		switch req.Type {
		case TypeCall:
			c.wg.Add(1)
			go c.call(ctx, req)
		case TypeListen:
			c.listen(ctx, req)
		case TypeDispose:
			c.dispose(req.ID)
		case TypePing:
			c.write(Response{ID: req.ID, Type: TypePong})
		default:
			c.writeError(req.ID, fmt.Errorf("%w: frame type %q", channel.ErrInvalidCommand, req.Type))
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

// connection holds the state of one served connection
type connection struct {
	server *Server
	conn   Conn
	caller channel.Caller
	logger *zap.Logger
	wg     sync.WaitGroup

	writeMu sync.Mutex

	mu        sync.Mutex
	listeners map[int64]context.CancelFunc
}

func (c *connection) call(ctx context.Context, req Request) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("call panicked",
				zap.String("channel", req.Channel),
				zap.String("command", req.Name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			c.writeError(req.ID, fmt.Errorf("%w: %s.%s: %v", ErrInternal, req.Channel, req.Name, r))
		}
	}()

	ch, err := c.server.lookup(req.Channel)
	if err != nil {
		c.writeError(req.ID, err)
		return
	}
	result, err := ch.Call(ctx, c.caller, req.Name, req.Args)
	if err != nil {
		c.logger.Debug("call failed",
			zap.String("channel", req.Channel),
			zap.String("command", req.Name),
			zap.Error(err))
		c.writeError(req.ID, err)
		return
	}
	c.write(Response{ID: req.ID, Type: TypeResult, Data: result})
}

func (c *connection) listen(ctx context.Context, req Request) {
	ch, err := c.server.lookup(req.Channel)
	if err != nil {
		c.writeError(req.ID, err)
		return
	}

	c.mu.Lock()
	if _, exists := c.listeners[req.ID]; exists {
		c.mu.Unlock()
		c.writeError(req.ID, fmt.Errorf("%w: listener %d already attached", channel.ErrInvalidArgument, req.ID))
		return
	}
	lctx, cancel := context.WithCancel(ctx)
	c.listeners[req.ID] = cancel
	c.mu.Unlock()

	events, err := ch.Listen(lctx, c.caller, req.Name, req.Args)
	if err != nil {
		c.removeListener(req.ID)
		cancel()
		c.writeError(req.ID, err)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		for ev := range events {
			c.write(Response{ID: req.ID, Type: TypeEvent, Data: ev})
		}
		c.removeListener(req.ID)
		c.write(Response{ID: req.ID, Type: TypeEnd})
	}()
}

// dispose detaches a listener. Unknown ids are ignored since the stream may
// already have ended.
func (c *connection) dispose(id int64) {
	c.mu.Lock()
	cancel, ok := c.listeners[id]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("dispose of unknown listener", zap.Int64("id", id))
		return
	}
	cancel()
}

func (c *connection) removeListener(id int64) {
	c.mu.Lock()
	delete(c.listeners, id)
	c.mu.Unlock()
}

func (c *connection) writeError(id int64, err error) {
	c.write(Response{ID: id, Type: TypeError, Error: errorBody(err)})
}

// write serializes frames on the connection
func (c *connection) write(resp Response) {
	data, err := sonic.Marshal(resp)
	if err != nil {
		c.logger.Error("failed to encode frame", zap.Int64("id", resp.ID), zap.Error(err))
		data, _ = sonic.Marshal(Response{ID: resp.ID, Type: TypeError, Error: errorBody(err)})
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("failed to write frame", zap.Int64("id", resp.ID), zap.Error(err))
		return
	}
	c.server.metrics.RecordWSMessage("out", resp.Type)
}

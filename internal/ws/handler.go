package ws

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/AgentOS/agent/internal/channel"
	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agent/internal/rpc"
	"github.com/GriffinCanCode/AgentOS/agent/internal/shared/id"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// AuthorityParam names the query parameter carrying the client's remote
// authority
const AuthorityParam = "authority"

// Options configures a Handler
type Options struct {
	// MaxMessageSize limits incoming frames in bytes, zero means unlimited
	MaxMessageSize int64

	// AllowedOrigins restricts the Origin header. Empty allows all.
	AllowedOrigins []string
}

// Handler upgrades HTTP requests and serves the RPC protocol on them
type Handler struct {
	server   *rpc.Server
	upgrader websocket.Upgrader
	opts     Options
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler
func NewHandler(server *rpc.Server, opts Options, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		server:  server,
		opts:    opts,
		logger:  logger.Named("ws"),
		metrics: metrics,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleConnection handles WebSocket upgrade and serves frames until the
// client goes away
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	if h.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(h.opts.MaxMessageSize)
	}

	connID := id.NewConnectionID()
	caller := channel.Caller{
		ConnectionID:    connID.String(),
		RemoteAuthority: c.Query(AuthorityParam),
	}
	logger := h.logger.With(
		zap.String("connection", caller.ConnectionID),
		zap.String("authority", caller.RemoteAuthority))

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	opened, err := connID.Created()
	if err != nil {
		opened = time.Now()
	}
	logger.Info("connection opened", zap.String("remote", c.ClientIP()))
	if err := h.server.ServeConn(c.Request.Context(), conn, caller); err != nil {
		logger.Warn("connection failed", zap.Error(err))
	}
	logger.Info("connection closed", zap.Duration("duration", time.Since(opened)))
}

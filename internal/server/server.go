package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/GriffinCanCode/AgentOS/agent/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/agent/internal/channel/environment"
	"github.com/GriffinCanCode/AgentOS/agent/internal/channel/files"
	"github.com/GriffinCanCode/AgentOS/agent/internal/disk"
	"github.com/GriffinCanCode/AgentOS/agent/internal/extensions"
	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/agent/internal/remap"
	"github.com/GriffinCanCode/AgentOS/agent/internal/rpc"
	"github.com/GriffinCanCode/AgentOS/agent/internal/telemetry"
	"github.com/GriffinCanCode/AgentOS/agent/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and the channels it serves
type Server struct {
	router   *gin.Engine
	http     *http.Server
	rpc      *rpc.Server
	files    *files.Channel
	env      *environment.Channel
	logger   *zap.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
}

// Options carries optional collaborators. Zero values select the defaults.
type Options struct {
	// Telemetry overrides the process-wide telemetry switch
	Telemetry *telemetry.Flag
	// Watchers overrides the fsnotify watcher factory
	Watchers disk.WatcherFactory
}

// NewServer wires the channels, the RPC transport and the HTTP routes
func NewServer(cfg *config.Config, logger *zap.Logger, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("Initializing agent server",
		zap.String("addr", cfg.Addr()),
		zap.String("app_root", cfg.Paths.AppRoot),
		zap.String("user_data", cfg.Paths.UserDataPath),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	watchers := opts.Watchers
	if watchers == nil {
		watchers = disk.FSWatcherFactory(cfg.Watch.BatchDelay)
	}
	watchers = disk.GuardedFactory(watchers, resilience.New("watchers", resilience.Settings{
		Threshold: cfg.Watch.FailureThreshold,
		Cooldown:  cfg.Watch.Cooldown,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	}))
	fileChannel := files.New(files.Options{
		Provider: disk.NewLocal(),
		Watchers: watchers,
		Remapper: remap.New(cfg.Paths.AppRoot),
		Logger:   logger,
		Metrics:  metrics,
	})

	pipeline := extensions.NewPipeline(extensions.NewManifestScanner(logger), logger, metrics, cfg.Scan.Concurrency)
	envChannel := environment.New(environment.Options{
		Paths: environment.Paths{
			AppRoot:                     cfg.Paths.AppRoot,
			UserDataPath:                cfg.Paths.UserDataPath,
			ExtensionsPath:              cfg.Paths.ExtensionsPath,
			BuiltinExtensionsPath:       cfg.Paths.BuiltinExtensionsPath,
			LogsPath:                    cfg.Paths.LogsPath,
			UserHome:                    cfg.Paths.UserHome,
			ExtraBuiltinExtensionsPaths: cfg.Paths.ExtraBuiltinExtensionsPaths,
			ExtraExtensionsPaths:        cfg.Paths.ExtraExtensionsPaths,
		},
		ConnectionToken: cfg.ConnectionToken,
		Pipeline:        pipeline,
		Translations:    extensions.FileTranslationLoader{},
		Telemetry:       opts.Telemetry,
		Logger:          logger,
		Metrics:         metrics,
	})

	rpcServer := rpc.NewServer(logger, metrics)
	rpcServer.Register(files.ChannelName, fileChannel)
	rpcServer.Register(environment.ChannelName, envChannel)
	logger.Info("Registered channels", zap.Strings("channels", rpcServer.Channels()))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	wsHandler := ws.NewHandler(rpcServer, ws.Options{
		MaxMessageSize: cfg.Server.MaxMessageSize,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger, metrics)

	s := &Server{
		router:   router,
		rpc:      rpcServer,
		files:    fileChannel,
		env:      envChannel,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		registry: registry,
	}

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/stream", wsHandler.HandleConnection)

	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, waits for handlers up to ctx's
// deadline and disposes every watch session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown incomplete", zap.Error(err))
	}

	s.files.Dispose()
	s.logger.Info("Disposed watch sessions")

	_ = s.logger.Sync()
	return err
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status        string   `json:"status"`
	Uptime        string   `json:"uptime"`
	Channels      []string `json:"channels"`
	Connections   int64    `json:"connections"`
	WatchSessions int      `json:"watch_sessions"`
	TotalCalls    int64    `json:"total_calls"`
	TotalErrors   int64    `json:"total_errors"`
	Telemetry     bool     `json:"telemetry"`
}

func (s *Server) health(c *gin.Context) {
	snapshot := s.metrics.Snapshot()
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		Uptime:        s.metrics.Uptime().Round(time.Second).String(),
		Channels:      s.rpc.Channels(),
		Connections:   snapshot.ActiveConnections,
		WatchSessions: s.files.Sessions(),
		TotalCalls:    snapshot.TotalCalls,
		TotalErrors:   snapshot.TotalErrors,
		Telemetry:     s.env.TelemetryEnabled(),
	})
}

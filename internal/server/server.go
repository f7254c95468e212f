package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/firedesk/firedesk/internal/api/http"
	"github.com/firedesk/firedesk/internal/api/middleware"
	"github.com/firedesk/firedesk/internal/domain/instance"
	"github.com/firedesk/firedesk/internal/domain/process"
	"github.com/firedesk/firedesk/internal/domain/profile"
	"github.com/firedesk/firedesk/internal/infrastructure/config"
	"github.com/firedesk/firedesk/internal/infrastructure/logging"
	"github.com/firedesk/firedesk/internal/infrastructure/monitoring"
	"github.com/firedesk/firedesk/internal/infrastructure/tracing"
	"github.com/firedesk/firedesk/internal/providers/clipboard"
	"github.com/firedesk/firedesk/internal/providers/proxycheck"
	"github.com/firedesk/firedesk/internal/shared/paths"
	"github.com/firedesk/firedesk/internal/ws"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	manager    *instance.Manager
	supervisor *process.Supervisor
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}

	logger.Info("Initializing firedesk admin service",
		zap.String("port", cfg.Server.Port),
		zap.String("data_dir", cfg.Data.Dir),
		zap.String("display", cfg.Browser.Display),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	// Initialize request tracing
	tracer := tracing.New("firedesk", logger.Logger)

	// Prepare the data layout
	layout := paths.New(cfg.Data.Dir)
	for _, dir := range []string{layout.ProfilesDir(), layout.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	// Open the instance store
	store, err := instance.Open(layout.InstancesFile())
	if err != nil {
		return nil, fmt.Errorf("failed to open instance store: %w", err)
	}
	logger.Info("Instance store opened",
		zap.String("path", layout.InstancesFile()),
		zap.Int("instances", len(store.List())),
	)

	// Domain components
	configurator := profile.New(logger)
	supervisor := process.New(process.Config{
		Binary:  cfg.Browser.Binary,
		Display: cfg.Browser.Display,
		LogPath: layout.LauncherLog(),
	}, logger)

	manager := instance.NewManager(store, configurator, supervisor, layout, instance.Options{
		StopTimeout:  cfg.Browser.StopTimeout,
		RestartMax:   cfg.Browser.RestartMax,
		RestartBase:  cfg.Browser.RestartBase,
		RestartCap:   cfg.Browser.RestartCap,
		StableWindow: cfg.Browser.StableWindow,
	}, logger).WithMetrics(metrics)

	// Providers
	clip := clipboard.New(cfg.Browser.Display, logger)
	checker := proxycheck.New(logger)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Create handlers
	handlers := apihttp.NewHandlers(manager, clip, checker, supervisor, metrics, layout)
	wsHandler := ws.NewHandler(manager, metrics, logger)

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/logs", handlers.TailLog)

	// Instance management
	router.GET("/instances", handlers.ListInstances)
	router.POST("/instances", handlers.CreateInstance)
	router.POST("/instances/autostart", handlers.Autostart)
	router.GET("/instances/:id", handlers.GetInstance)
	router.PUT("/instances/:id", handlers.UpdateInstance)
	router.DELETE("/instances/:id", handlers.DeleteInstance)
	router.POST("/instances/:id/start", handlers.StartInstance)
	router.POST("/instances/:id/stop", handlers.StopInstance)
	router.POST("/instances/:id/proxy-check", handlers.ProxyCheck)
	router.GET("/instances/:id/export", handlers.ExportInstance)

	// Clipboard
	router.GET("/clipboard", handlers.ReadClipboard)
	router.POST("/clipboard", handlers.WriteClipboard)

	// WebSocket
	router.GET("/stream", wsHandler.HandleConnection)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:     router,
		manager:    manager,
		supervisor: supervisor,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
	}, nil
}

// Reconcile aligns persisted instance state with the processes actually
// alive on the host and applies the auto-start policy. Called once at
// boot, before Run.
func (s *Server) Reconcile(ctx context.Context) {
	s.logger.Info("Reconciling instance state")
	s.manager.Reconcile(ctx)
	stats := s.manager.Stats()
	s.logger.Info("Reconciliation complete",
		zap.Int("total", stats.Total),
		zap.Int("running", stats.Running),
	)
}

// Run starts the HTTP server and blocks until it stops serving.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close gracefully shuts down the HTTP server. Running browsers are left
// alone; the next admin run re-adopts them during reconciliation.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(err))
			return err
		}
	}

	// Sync logger before exit
	s.logger.Sync()

	return nil
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/sandveil/sandveil/internal/api/http"
	"github.com/sandveil/sandveil/internal/api/middleware"
	"github.com/sandveil/sandveil/internal/api/ws"
	"github.com/sandveil/sandveil/internal/domain/registry"
	"github.com/sandveil/sandveil/internal/domain/sandbox"
	"github.com/sandveil/sandveil/internal/infrastructure/config"
	"github.com/sandveil/sandveil/internal/infrastructure/logging"
	"github.com/sandveil/sandveil/internal/infrastructure/monitoring"
	"github.com/sandveil/sandveil/internal/providers/dompatch"
	"github.com/sandveil/sandveil/internal/providers/effect"
	"github.com/sandveil/sandveil/internal/providers/loader"
)

// Server wires the sandbox environment, registry, and HTTP surface.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	registry *registry.Manager
	env      *sandbox.Env
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer builds a fully wired server from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing server",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
	)

	promRegistry := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(promRegistry)

	// Shared environment: one real global store per process, with the
	// document capture and prototype patches gated on the active counter.
	env := sandbox.NewEnv(nil, effect.NewCapture(logger), dompatch.New(logger))

	reg := registry.NewManager(env, logger).
		WithMetrics(metrics).
		WithLoader(loader.New(cfg.Loader, logger))

	if cfg.Plugins.Path != "" {
		rules, err := config.LoadPluginRules(cfg.Plugins.Path)
		if err != nil {
			logger.Warn("Failed to load plugin rules",
				zap.String("path", cfg.Plugins.Path),
				zap.Error(err))
		} else {
			reg.WithPluginRules(rules)
			logger.Info("Plugin rules loaded", zap.String("path", cfg.Plugins.Path))
		}
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	apihttp.NewHandlers(reg, metrics, logger).Register(router)
	router.GET("/ws/bus/:name", ws.NewHandler(reg, metrics, logger).HandleBus)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	logger.Info("Server initialized")

	return &Server{
		router:   router,
		registry: reg,
		env:      env,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then stops every application.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(err))
		}
	}

	if err := s.registry.Close(); err != nil {
		s.logger.Error("Registry close failed", zap.Error(err))
	}

	s.logger.Sync()
	return nil
}

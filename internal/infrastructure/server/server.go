// Package server wires configuration, logging, metrics, the stream manager
// and the status API into one runnable unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/gazeflow/internal/api/http"
	"github.com/GriffinCanCode/gazeflow/internal/api/middleware"
	"github.com/GriffinCanCode/gazeflow/internal/api/ws"
	"github.com/GriffinCanCode/gazeflow/internal/domain/calibration"
	"github.com/GriffinCanCode/gazeflow/internal/domain/manager"
	"github.com/GriffinCanCode/gazeflow/internal/domain/stream"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/config"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/tracing"
)

const shutdownTimeout = 5 * time.Second

// Server owns one manager run and, when enabled, the HTTP API in front of it.
type Server struct {
	config  *config.Config
	logger  *zap.Logger
	level   zap.AtomicLevel
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	manager *manager.Manager
	preview *ws.PreviewHub
	router  *gin.Engine
}

// Option adjusts server construction.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	manager []manager.Option
}

// WithLogger uses l instead of building a logger from the config.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithManagerOptions appends options for the stream manager.
func WithManagerOptions(opts ...manager.Option) Option {
	return func(o *options) { o.manager = append(o.manager, opts...) }
}

// NewFromFile loads a stream set file and builds the server around it.
func NewFromFile(cfg *config.Config, path string, opts ...Option) (*Server, error) {
	tree, err := config.LoadTree(path)
	if err != nil {
		return nil, err
	}
	streams, err := stream.DecodeSet(tree)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(cfg, streams, opts...)
}

// New builds the manager for streams and, if cfg.HTTP.Enabled, the API.
func New(cfg *config.Config, streams []stream.Config, opts ...Option) (*Server, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	s := &Server{config: cfg, logger: o.logger, level: zap.NewAtomicLevel()}
	if s.logger == nil {
		logger, level, err := logging.New(logging.FromConfig(cfg.Logging))
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		s.logger, s.level = logger, level
	}

	s.logger.Info("Initializing gazeflow",
		zap.Int("streams", len(streams)),
		zap.Bool("http", cfg.HTTP.Enabled),
	)

	s.metrics = monitoring.NewMetrics()
	s.tracer = tracing.New("gazeflow", s.logger)

	mgrOpts := []manager.Option{
		manager.WithEngineConfig(cfg.Engine),
		manager.WithLogger(s.logger),
		manager.WithMetrics(s.metrics),
		manager.WithRecordingDir(cfg.Recording.Root),
		manager.WithCalibrationStore(calibration.NewStore(cfg.Calibration.Dir)),
	}
	if cfg.Calibration.URL != "" {
		s.logger.Info("Using remote calibration service", zap.String("url", cfg.Calibration.URL))
		mgrOpts = append(mgrOpts, manager.WithComputer(calibration.NewRemote(calibration.RemoteConfig{
			URL:     cfg.Calibration.URL,
			Timeout: cfg.Calibration.Timeout,
			Retries: cfg.Calibration.Retries,
			Tracer:  s.tracer,
		}, s.logger)))
	}
	if cfg.HTTP.Enabled {
		s.preview = ws.NewPreviewHub(s.metrics, s.logger)
		mgrOpts = append(mgrOpts, manager.WithViewer(s.preview))
	}

	mgr, err := manager.New(streams, append(mgrOpts, o.manager...)...)
	if err != nil {
		s.tracer.Close()
		return nil, err
	}
	s.manager = mgr

	if cfg.HTTP.Enabled {
		s.router = s.buildRouter()
	}

	s.logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.Middleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.CORSFromConfig(s.config.HTTP)))
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitFromConfig(s.config.RateLimit)))
	}

	apihttp.NewHandlers(s.manager, s.config.Recording.Root, s.logger).Register(router)

	status := ws.NewStatusHandler(s.manager, s.config.HTTP.StatusPush, s.metrics, s.logger)
	router.GET("/ws/status", status.HandleConnection)
	router.GET("/ws/preview/:name", s.preview.HandleConnection)

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return router
}

// Manager returns the stream manager.
func (s *Server) Manager() *manager.Manager { return s.manager }

// Metrics returns the metrics registry wrapper.
func (s *Server) Metrics() *monitoring.Metrics { return s.metrics }

// Logger returns the server logger.
func (s *Server) Logger() *zap.Logger { return s.logger }

// Handler returns the API router, or nil when HTTP is disabled.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		return nil
	}
	return s.router
}

// Run serves the API (if enabled) and runs the manager until ctx ends, the
// configured duration elapses, or every stream finishes.
func (s *Server) Run(ctx context.Context) error {
	if s.router == nil {
		return s.manager.Run(ctx)
	}

	addr := s.config.HTTP.Addr()
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	httpErr := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err, ok := <-httpErr; ok {
			s.logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	runErr := s.manager.Run(runCtx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	return runErr
}

// Close flushes the logger.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")
	s.tracer.Close()
	_ = s.logger.Sync()
	return nil
}

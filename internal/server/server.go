// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/chainguard/internal/config"
	"github.com/mbd888/chainguard/internal/guard"
	"github.com/mbd888/chainguard/internal/health"
	"github.com/mbd888/chainguard/internal/idgen"
	"github.com/mbd888/chainguard/internal/logging"
	"github.com/mbd888/chainguard/internal/metrics"
	"github.com/mbd888/chainguard/internal/oracle"
	"github.com/mbd888/chainguard/internal/ratelimit"
	"github.com/mbd888/chainguard/internal/realtime"
	"github.com/mbd888/chainguard/internal/security"
	"github.com/mbd888/chainguard/internal/tx"
	"github.com/mbd888/chainguard/internal/validation"
	"github.com/mbd888/chainguard/internal/watcher"
)

// Server wraps the HTTP server and the bound guard instance
type Server struct {
	cfg          *config.Config
	guard        *guard.Guard
	realtimeHub  *realtime.Hub
	checks       *health.Registry
	chainWatcher *watcher.Watcher
	rateLimiter  *ratelimit.Limiter
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGuard sets a custom guard (for testing)
func WithGuard(g *guard.Guard) Option {
	return func(s *Server) {
		s.guard = g
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set guard/logger)
	for _, opt := range opts {
		opt(s)
	}

	if cfg.OracleEnabled {
		if err := security.ValidateEndpointURL(cfg.OracleEndpoint); err != nil {
			return nil, fmt.Errorf("invalid oracle endpoint: %w", err)
		}
	}

	if s.guard == nil {
		s.guard = guard.New(guardConfigFrom(cfg), guard.WithLogger(logging.Component(s.logger, "guard")))
	}

	s.realtimeHub = realtime.NewHub(logging.Component(s.logger, "realtime"))
	s.checks = health.NewRegistry()
	s.registerHealthChecks()

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// guardConfigFrom maps the application config onto the guard's config surface.
func guardConfigFrom(cfg *config.Config) guard.Config {
	gc := guard.DefaultConfig()
	gc.Mode = guard.Mode(cfg.Mode)
	gc.RiskTolerance = guard.RiskTolerance(cfg.RiskTolerance)
	gc.EnablePatternDetection = cfg.EnablePatternDetection
	gc.ValidateTransferHooks = cfg.ValidateTransferHooks
	gc.MaxHookAccounts = cfg.MaxHookAccounts
	gc.AllowedHookPrograms = cfg.AllowedHookPrograms
	gc.Pulsar = oracle.Config{
		Enabled:               cfg.OracleEnabled,
		Endpoint:              cfg.OracleEndpoint,
		APIKey:                cfg.OracleAPIKey,
		CacheTTL:              cfg.OracleCacheTTL,
		Timeout:               cfg.OracleTimeout,
		FallbackOnError:       cfg.OracleFallbackOnError,
		RiskThreshold:         cfg.RiskThreshold,
		EnableComplianceCheck: cfg.EnableComplianceCheck,
	}
	return gc
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS. Wallet extensions call from arbitrary origins, so allow all.
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Honor an upstream ID so traces correlate across proxies.
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		// Client IP only on errors, where it helps triage abuse.
		if status >= 400 {
			attrs = append(attrs, "client_ip", c.ClientIP())
		}

		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", attrs...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	{
		v1.POST("/validate", s.validateHandler)

		v1.POST("/emergency-stop", s.activateEmergencyStopHandler)
		v1.DELETE("/emergency-stop", s.deactivateEmergencyStopHandler)
		v1.GET("/emergency-stop", s.emergencyStopStatusHandler)

		v1.GET("/warnings", s.warningHistoryHandler)
		v1.DELETE("/warnings", s.clearWarningHistoryHandler)

		v1.GET("/risk/cache", s.cacheStatsHandler)
		v1.DELETE("/risk/cache", s.clearCacheHandler)
		v1.GET("/risk/:asset", validation.AssetParamMiddleware(), s.assetRiskHandler)

		v1.GET("/config", s.configHandler)

		v1.GET("/events", gin.WrapF(s.realtimeHub.HandleWebSocket))
		v1.GET("/events/stats", s.eventStatsHandler)
	}
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

func (s *Server) registerHealthChecks() {
	s.checks.Register("guard", func(ctx context.Context) health.Status {
		if s.guard.EmergencyStopped() {
			return health.OK("guard", "emergency stop active")
		}
		return health.OK("guard", "")
	})
	s.checks.Register("oracle", func(ctx context.Context) health.Status {
		if !s.guard.Config().Pulsar.Enabled {
			return health.OK("oracle", "disabled")
		}
		return health.OK("oracle", fmt.Sprintf("%d cached assets", s.guard.Oracle().CacheStats().Size))
	})
	s.checks.Register("realtime", func(ctx context.Context) health.Status {
		return health.OK("realtime", fmt.Sprintf("%d clients", s.realtimeHub.ClientCount()))
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	subsystemsOK, subsystems := s.checks.CheckAll(c.Request.Context())
	ok := s.healthy.Load() && subsystemsOK

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":        healthLabel(ok),
		"emergencyStop": s.guard.EmergencyStopped(),
		"subsystems":    subsystems,
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func healthLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until a shutdown signal or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"mode", s.cfg.Mode,
			"risk_tolerance", s.cfg.RiskTolerance,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start the chain watcher when configured. Flagged confirmed
	// transactions surface as realtime events and warning history.
	if s.cfg.WatcherEnabled {
		w, err := watcher.New(watcher.Config{
			RPCURL:       s.cfg.WatcherRPCURL,
			PollInterval: s.cfg.WatcherPollInterval,
			StartBlock:   s.cfg.WatcherStartBlock,
		}, s.guard, func(t *tx.UnifiedTransaction, r *guard.ValidationResult) {
			s.realtimeHub.BroadcastValidation(realtimeEvent(t, r))
		}, logging.Component(s.logger, "watcher"))
		if err != nil {
			return fmt.Errorf("chain watcher: %w", err)
		}
		if err := w.Start(runCtx); err != nil {
			return fmt.Errorf("chain watcher: %w", err)
		}
		s.chainWatcher = w
	}

	// Start runtime metrics sampling
	go metrics.StartRuntimeCollector(runCtx, 15*time.Second)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	if s.chainWatcher != nil {
		s.chainWatcher.Stop()
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Guard exposes the bound guard instance for tests.
func (s *Server) Guard() *guard.Guard {
	return s.guard
}

// Package api exposes the signal engine over HTTP: signal generation, outcome
// reporting, the weight snapshot, guard status, metrics and a websocket event
// stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/logging"
	"signal-engine/internal/metrics"
)

// TraceHeader carries a caller-supplied trace id in and the effective one out
const TraceHeader = "X-Trace-ID"

// RateLimiter hands out one token bucket per client key
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing perMinute requests per key with
// the given burst
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perMinute / 60),
		burst:    burst,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host" default:"0.0.0.0"`
	Port            int           `json:"port" yaml:"port" default:"8090" validate:"gte=1,lte=65535"`
	ProductionMode  bool          `json:"production_mode" yaml:"production_mode" default:"false"`
	AllowOrigins    []string      `json:"allow_origins" yaml:"allow_origins" default:"[\"http://localhost:5173\"]"`
	RatePerMinute   float64       `json:"rate_per_minute" yaml:"rate_per_minute" default:"120" validate:"gt=0"`
	RateBurst       int           `json:"rate_burst" yaml:"rate_burst" default:"20" validate:"gte=1"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" default:"10s"`
}

// DefaultServerConfig returns the standard server settings
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8090,
		AllowOrigins:    []string{"http://localhost:5173"},
		RatePerMinute:   120,
		RateBurst:       20,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// HealthChecker reports the health of a backing dependency
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EventHistory reads persisted bus events back, newest first
type EventHistory interface {
	RecentEvents(ctx context.Context, limit int) ([]events.Event, error)
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	engine      *engine.Engine
	guard       engine.GuardChecker
	eventBus    *events.EventBus
	metrics     *metrics.Recorder
	hub         *WSHub
	rateLimiter *RateLimiter
	checks      map[string]HealthChecker
	history     EventHistory
	config      ServerConfig
	logger      *logging.Logger
	startedAt   time.Time
}

// NewServer creates a new API server. guard, eventBus and rec may be nil.
func NewServer(cfg ServerConfig, eng *engine.Engine, guard engine.GuardChecker, eventBus *events.EventBus, rec *metrics.Recorder, logger *logging.Logger) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if logger == nil {
		logger = logging.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", TraceHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", TraceHeader}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		engine:      eng,
		guard:       guard,
		eventBus:    eventBus,
		metrics:     rec,
		rateLimiter: NewRateLimiter(cfg.RatePerMinute, cfg.RateBurst),
		checks:      make(map[string]HealthChecker),
		config:      cfg,
		logger:      logger.WithComponent("api"),
		startedAt:   time.Now(),
	}
	router.Use(s.requestMiddleware())

	if eventBus != nil {
		s.hub = NewWSHub(s.logger)
		go s.hub.Run()
		eventBus.SubscribeAll(s.hub.BroadcastEvent)
	}

	s.setupRoutes()
	return s
}

// AddHealthCheck registers a dependency reported by /api/health
func (s *Server) AddHealthCheck(name string, hc HealthChecker) {
	s.checks[name] = hc
}

// SetEventHistory enables GET /api/v1/events
func (s *Server) SetEventHistory(h EventHistory) {
	s.history = h
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestMiddleware assigns the trace id, records metrics and logs the request
func (s *Server) requestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = logging.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(logging.ContextWithTraceID(c.Request.Context(), traceID))
		c.Header(TraceHeader, traceID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		d := time.Since(start)
		s.metrics.RecordHTTP(route, c.Request.Method, status, d)
		logging.APIContext(s.logger, c.Request.Method, route, status).
			WithTraceID(traceID).
			WithDuration(d).
			Debug("HTTP request")
	}
}

// rateLimitMiddleware limits requests per client address
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "Rate limit exceeded",
				"path":    c.FullPath(),
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	if s.hub != nil {
		s.router.GET("/ws/events", s.handleWebSocket)
	}

	v1 := s.router.Group("/api/v1")
	v1.Use(s.rateLimitMiddleware())
	{
		v1.POST("/signals", s.handleGenerate)
		v1.POST("/outcomes", s.handleOutcome)
		v1.GET("/weights", s.handleWeights)
		v1.GET("/guard", s.handleGuard)
		v1.GET("/events", s.handleEvents)
		v1.POST("/proposals/:id/price", s.handlePriceUpdate)
	}
}

// Start runs the HTTP server until Shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

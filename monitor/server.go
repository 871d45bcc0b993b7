package monitor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kbukum/flowkit/logger"
)

// Config holds the monitor HTTP server configuration.
type Config struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Addr            string        `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:9090"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Server serves the monitor routes on their own listener.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	config     Config
	log        *logger.Logger
	listener   net.Listener
}

// NewServer creates a server for registry. Call ApplyDefaults on cfg first.
func NewServer(cfg Config, registry *Registry) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log := logger.Get("monitor")
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))
	Register(engine, registry)

	return &Server{
		engine: engine,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: cfg.ReadTimeout,
			ReadTimeout:       cfg.ReadTimeout,
		},
		config: cfg,
		log:    log,
	}
}

// Engine returns the gin engine for additional routes.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start binds the listener and serves in a goroutine. It returns once the
// port is bound.
func (s *Server) Start(_ context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("monitor failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("monitor server error", logger.Fields("error", err.Error()))
		}
	}()

	s.log.Info("monitor server started", logger.Fields("addr", listener.Addr().String()))
	return nil
}

// Stop gracefully shuts the server down within the configured timeout.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("monitor shutdown: %w", err)
	}
	s.log.Info("monitor server stopped")
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// requestLogger logs every request except health probes.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		fields := logger.Fields(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("monitor request failed", fields)
			return
		}
		log.Debug("monitor request", fields)
	}
}

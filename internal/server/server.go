// Package server exposes the Lark card callback, Prometheus metrics and a
// small read-only JSON API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"beanbot/internal/logging"
	"beanbot/internal/reminder"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	DefaultListenAddr   = ":8080"
	DefaultCallbackPath = "/lark/card-callback"

	shutdownTimeout = 10 * time.Second
)

// ReminderView is the read side of the reminder service.
type ReminderView interface {
	Settings() *reminder.Settings
	Pending() []reminder.Occurrence
	Now() time.Time
}

// Config configures the HTTP server.
type Config struct {
	ListenAddr   string
	CallbackPath string
	// PublicAPI lifts the loopback-only restriction on /api.
	PublicAPI    bool
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps are the handlers and views mounted on the router. Nil entries leave
// their routes unregistered.
type Deps struct {
	Reminders       ReminderView
	CardCallback    http.Handler
	Metrics         http.Handler
	Version         string
	RequestLogger   logging.Logger
	AllowAllOrigins bool
}

// Server runs the gin engine behind an http.Server.
type Server struct {
	cfg        Config
	engine     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
	startedAt  time.Time
}

// New builds the router. It does not listen until Run.
func New(cfg Config, deps Deps, logger logging.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = DefaultCallbackPath
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		engine:    gin.New(),
		logger:    logging.OrNop(logger),
		startedAt: time.Now(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(ObservabilityMiddleware(deps.RequestLogger))
	s.routes(deps)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes(deps Deps) {
	s.engine.GET("/healthz", s.handleHealth(deps))

	if deps.CardCallback != nil {
		s.engine.POST(s.cfg.CallbackPath, gin.WrapH(deps.CardCallback))
	}
	if deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.Reminders == nil {
		return
	}

	api := s.engine.Group("/api")
	if !s.cfg.PublicAPI {
		api.Use(LoopbackOnlyMiddleware())
	}
	if deps.AllowAllOrigins {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{http.MethodGet, http.MethodOptions}
		api.Use(cors.New(corsConfig))
	}
	api.Use(JSONMiddleware())
	handler := &apiHandler{view: deps.Reminders}
	api.GET("/reminders", handler.listReminders)
	api.GET("/settings", handler.getSettings)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("HTTP server listening on %s", listener.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Pending   int       `json:"pending"`
}

func (s *Server) handleHealth(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := HealthResponse{
			Status:    "ok",
			Version:   deps.Version,
			Timestamp: time.Now().UTC(),
			Uptime:    time.Since(s.startedAt).Truncate(time.Second).String(),
		}
		if deps.Reminders != nil {
			resp.Pending = len(deps.Reminders.Pending())
		}
		c.JSON(http.StatusOK, resp)
	}
}

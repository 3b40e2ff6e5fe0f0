// Package server is the HTTP front end: it starts and stops trading sessions,
// exposes their state and streams bus events over a websocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"supertrend-bot/internal/engine"
	"supertrend-bot/internal/events"
	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/types"
)

// Sessions is the part of engine.Manager the front end drives.
type Sessions interface {
	Start(ctx context.Context, job engine.Job) (types.SessionStatus, error)
	Stop(ctx context.Context, token string) (types.SessionStatus, error)
	Status(token string) (types.SessionStatus, bool)
	List() []types.SessionStatus
}

// Options tunes the middleware stack. Zero values fall back to defaults.
type Options struct {
	JWTSecret         string
	RequestsPerSecond float64
	Burst             int
	RequestTimeout    time.Duration
	StopTimeout       time.Duration
	DryRun            bool
}

// Server wires HTTP endpoints around the session manager and the event bus.
type Server struct {
	Router   *gin.Engine
	Sessions Sessions
	Broker   interfaces.Broker
	Journal  interfaces.TradeJournal
	Bus      *events.Bus

	opts Options
	http *http.Server
}

func New(sessions Sessions, brk interfaces.Broker, journal interfaces.TradeJournal, bus *events.Bus, opts Options) *Server {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 50
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = opts.RequestTimeout
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware(newIPLimiters(opts.RequestsPerSecond, opts.Burst)))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:   r,
		Sessions: sessions,
		Broker:   brk,
		Journal:  journal,
		Bus:      bus,
		opts:     opts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	protected := s.Router.Group("")
	if s.opts.JWTSecret != "" {
		protected.Use(AuthMiddleware(s.opts.JWTSecret))
	}
	protected.GET("/ws", s.websocket)

	api := protected.Group("")
	api.Use(TimeoutMiddleware(s.opts.RequestTimeout))
	{
		api.POST("/apply_supertrend", s.applySupertrend)
		api.POST("/stop", s.stop)
		api.GET("/sessions", s.listSessions)
		api.GET("/sessions/:token", s.getSession)
		api.GET("/sessions/:token/trades", s.listTrades)
		api.POST("/place_order", s.placeOrder)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "dry_run": s.opts.DryRun})
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info(context.Background(), "HTTP server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

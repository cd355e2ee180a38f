// Package api exposes the WebSocket endpoint and a small read-only REST surface
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradesim/internal/market"
	"github.com/ajitpratap0/tradesim/internal/session"
)

// Server serves /ws and the REST endpoints
type Server struct {
	router   *gin.Engine
	sessions *session.Manager
	history  *market.History
	upgrader websocket.Upgrader
	config   Config
	server   *http.Server

	mu      sync.Mutex
	baseCtx context.Context // set by Start, inherited by every request
}

// Config contains server configuration
type Config struct {
	Host           string
	Port           int
	ReadLimit      int64 // max inbound frame bytes, 0 keeps the gorilla default
	AllowedOrigins []string
	Version        string
}

// NewServer creates a new API server
func NewServer(config Config, sessions *session.Manager, history *market.History) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(corsConfig(config.AllowedOrigins)))

	s := &Server{
		router:   router,
		sessions: sessions,
		history:  history,
		config:   config,
		baseCtx:  context.Background(),
	}
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseContext() },
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupRoutes()

	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || allowsAny(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// checkOrigin applies the CORS origin list to WebSocket upgrades
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.config.AllowedOrigins) == 0 || allowsAny(s.config.AllowedOrigins) {
		return true
	}
	for _, o := range s.config.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

func (s *Server) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// Start serves until Stop is called. Requests inherit ctx, so cancelling it
// ends every live session. Start returns at once when ctx is already done or
// Stop ran first.
func (s *Server) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	log.Info().Str("addr", s.Addr()).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logEvent := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}

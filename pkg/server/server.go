// Package server exposes the query runner over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/query"
	"github.com/soundprediction/graphquery/pkg/search"
	"github.com/soundprediction/graphquery/pkg/server/handlers"
	"github.com/soundprediction/graphquery/pkg/types"
)

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	router   *gin.Engine
	searcher search.Searcher
	saver    query.Saver
	tables   *types.Tables
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, searcher search.Searcher, saver query.Saver, tables *types.Tables, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:   cfg,
		searcher: searcher,
		saver:    saver,
		tables:   tables,
		logger:   logger,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	if s.config.Server.Mode != "" {
		gin.SetMode(s.config.Server.Mode)
	}

	s.router = gin.New()
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.tables)
	queryHandler := handlers.NewQueryHandler(s.searcher, s.saver, s.tables, s.config.Query, s.logger)

	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/health/detailed", healthHandler.DetailedHealthCheck)

	s.router.POST("/query", queryHandler.Query)
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/query", queryHandler.Query)
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info("Starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping server")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// contextMiddleware tags the request context for logs and telemetry.
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		ctx := context.WithValue(c.Request.Context(), types.ContextKeySource, "server:"+requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

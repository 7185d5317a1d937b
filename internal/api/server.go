package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-reconciler/internal/api/handlers"
	"github.com/eshaffer321/receipt-reconciler/internal/api/middleware"
	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
)

// Config holds API server configuration.
type Config struct {
	Addr           string
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8085",
		AllowedOrigins: middleware.DefaultCORSConfig().AllowedOrigins,
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	rec        *service.Reconciler
}

// NewServer creates a new API server backed by the reconciler.
func NewServer(cfg Config, rec *service.Reconciler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		router: gin.New(),
		logger: logger,
		rec:    rec,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())

	// CORS
	corsConfig := middleware.DefaultCORSConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = s.config.AllowedOrigins
	}
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger, "/health"))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.GET("/health", healthHandler.Get)

	api := s.router.Group("/api")
	{
		// Review queue
		matches := handlers.NewMatchesHandler(s.rec, s.logger)
		api.GET("/candidates", matches.Candidates)
		api.POST("/matches", matches.Commit)
		api.DELETE("/matches/:receiptID", matches.Unmatch)
		api.POST("/skips", matches.Skip)

		// Receipts
		receipts := handlers.NewReceiptsHandler(s.rec, s.logger)
		api.POST("/receipts", receipts.Create)
		api.GET("/receipts/:id", receipts.Get)
		api.PATCH("/receipts/:id", receipts.Patch)
		api.DELETE("/receipts/:id", receipts.Delete)
		api.POST("/receipts/:id/attempt", receipts.Attempt)
		api.POST("/receipts/:id/assign", receipts.Assign)
		api.POST("/receipts/:id/charge", receipts.CreateCharge)

		// Charges
		charges := handlers.NewChargesHandler(s.rec, s.logger)
		api.POST("/charges", charges.Create)
		api.DELETE("/charges/:id", charges.Delete)
		api.PUT("/charges/:id/flags", charges.SetFlags)

		// Statements
		statements := handlers.NewStatementsHandler(s.rec, s.logger)
		api.GET("/statements", statements.List)
		api.POST("/statements", statements.Create)

		// Model and merchants
		modelHandler := handlers.NewModelHandler(s.rec, s.logger)
		api.GET("/model", modelHandler.Get)
		api.POST("/model/train", modelHandler.Train)
		api.POST("/aliases", modelHandler.AddAlias)
		api.GET("/merchants/normalize", modelHandler.Normalize)

		// Stats
		stats := handlers.NewStatsHandler(s.rec, s.logger)
		api.GET("/stats", stats.Get)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", s.config.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server and waits for queued skip writes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.rec.Wait()
	return err
}

// Router returns the HTTP handler for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

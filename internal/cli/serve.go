package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-reconciler/internal/api"
)

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Addr    string
	Verbose bool
}

// RunServe runs the API server until ctx is cancelled.
func RunServe(ctx context.Context, app *App, flags ServeFlags) error {
	logger := app.Logger

	if !flags.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create API config
	apiCfg := api.Config{
		Addr:           app.Config.API.Addr,
		AllowedOrigins: app.Config.API.AllowedOrigins,
	}
	if flags.Addr != "" {
		apiCfg.Addr = flags.Addr
	}

	server := api.NewServer(apiCfg, app.Reconciler, logger)

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		logger.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}

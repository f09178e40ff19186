// Package dashboard serves the shop-floor HTTP API: the cascade operations,
// job progress and Prometheus metrics.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/shopfloor/internal/models"
	"gorm.io/gorm"
)

// Cascade is the set of engine operations exposed over HTTP.
// *cascade.Engine implements it.
type Cascade interface {
	Start(ctx context.Context, tenantID, taskID, operatorID string) error
	Stop(ctx context.Context, tenantID, taskID, operatorID string) (*models.TimeEntry, error)
	Complete(ctx context.Context, tenantID, taskID, operatorID string) error
	RecalculateJobStage(ctx context.Context, tenantID, jobID string) error
	ReconcileJob(ctx context.Context, tenantID, jobID string) (int, error)
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB      *gorm.DB
	Engine  Cascade
	Metrics http.Handler // served at /metrics when set
	Logger  *slog.Logger
	Port    int
	Out     io.Writer

	// StreamInterval is how often job event streams poll for changes.
	StreamInterval time.Duration
}

// NewRouter builds the gin router without starting a server.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("dashboard: db is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("dashboard: engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 2 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger))
	registerRoutes(router, opts)
	return router, nil
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"tenant", c.GetString(tenantKey),
			"took", time.Since(began))
	}
}

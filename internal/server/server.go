// Package server exposes the interview lifecycle and evaluation over HTTP.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/proctor/internal/evaluation"
	"github.com/zulandar/proctor/internal/interview"
	"github.com/zulandar/proctor/internal/recording"
	"go.uber.org/zap"
)

// DefaultMaxUpload caps multipart recording uploads.
const DefaultMaxUpload = 512 << 20

// Completer triggers an evaluation.
type Completer interface {
	TriggerCompletion(ctx context.Context, interviewID string) (*evaluation.Result, error)
}

// EvaluationReader returns stored evaluations.
type EvaluationReader interface {
	Get(ctx context.Context, interviewID string) (*evaluation.Result, error)
}

// Deps are the services behind the API.
type Deps struct {
	Interviews  *interview.Store
	Recorder    *recording.Coordinator
	Completer   Completer
	Evaluations EvaluationReader
	Logger      *zap.Logger
	MaxUpload   int64
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Deps
	Port int
	Out  io.Writer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = DefaultMaxUpload
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger))

	registerRoutes(router, &handler{Deps: deps, log: deps.Logger})
	return router
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Interviews == nil {
		return fmt.Errorf("server: interview store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           NewRouter(opts.Deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Proctor API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func registerRoutes(router *gin.Engine, h *handler) {
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/interviews", h.createInterview)
		api.GET("/interviews/:id", h.getInterview)
		api.GET("/join/:code", h.joinInterview)
		api.POST("/interviews/:id/recording/start", h.startRecording)
		api.POST("/interviews/:id/recording/stop", h.stopRecording)
		api.POST("/interviews/:id/activity", h.recordActivity)
		api.POST("/interviews/:id/cancel", h.cancelInterview)
		api.POST("/interviews/:id/complete", h.completeInterview)
		api.GET("/interviews/:id/evaluation", h.getEvaluation)
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

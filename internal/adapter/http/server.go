package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
	"github.com/couchcryptid/locate-annotation-service/internal/pipeline"
)

// Annotator is the session service behind the API.
type Annotator interface {
	CheckReadiness(ctx context.Context) error
	Open(ctx context.Context, req pipeline.OpenRequest) (*pipeline.Session, error)
	Session(deviceID string) (*pipeline.Session, error)
	Close(ctx context.Context, deviceID string) error
	Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// Server exposes the annotation API plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	annotator  Annotator
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 routes.
func NewServer(addr string, annotator Annotator, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     router,
			ReadTimeout: 10 * time.Second,
			// Opening a session may wait on the warehouse.
			WriteTimeout: 11 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		annotator: annotator,
		logger:    logger,
	}

	router.GET("/healthz", gin.WrapF(sharedobs.LivenessHandler()))
	router.GET("/readyz", gin.WrapF(sharedobs.ReadinessHandler(annotator)))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/presets", s.handlePresets)
		api.GET("/leaderboard", s.handleLeaderboard)

		sessions := api.Group("/sessions")
		sessions.POST("", s.handleOpen)
		sessions.GET("/:device", s.handleView)
		sessions.DELETE("/:device", s.handleClose)
		sessions.POST("/:device/label", s.handleLabel)
		sessions.POST("/:device/bulk-label", s.handleBulkLabel)
		sessions.POST("/:device/advance", s.handleAdvance)
		sessions.POST("/:device/retreat", s.handleRetreat)
		sessions.POST("/:device/jump", s.handleJump)
		sessions.POST("/:device/rewind", s.handleRewind)
		sessions.GET("/:device/export", s.handleExport)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// requestLogger logs one line per request once the handler has run.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if device := c.Param("device"); device != "" {
			attrs = append(attrs, "device_id", device)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("http request", attrs...)
		case c.FullPath() == "/healthz" || c.FullPath() == "/readyz" || c.FullPath() == "/metrics":
			logger.Debug("http request", attrs...)
		default:
			logger.Info("http request", attrs...)
		}
	}
}

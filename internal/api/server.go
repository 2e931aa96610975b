// Package api serves the event list to the calendar widget over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hray3182/Timeline/internal/models"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Service is the part of the event manager the API drives
type Service interface {
	Events() []models.Event
	Today(loc *time.Location) []models.Event
	Upcoming(within time.Duration) []models.Event
	Search(query string) []models.Event
	Get(ref string) (models.Event, error)
	Create(ctx context.Context, event models.Event) (models.Event, error)
	CreateRecommended(ctx context.Context, seed models.Event) (models.Event, error)
	Edit(ctx context.Context, ref string, patch models.EventPatch) (models.Event, error)
	Move(ctx context.Context, ref string, start, end time.Time) (models.Event, error)
	Delete(ctx context.Context, ref string) error
	Sync(ctx context.Context) (int, error)
	Import(ctx context.Context, events []models.Event) error
	Session(ctx context.Context) *models.Session
	SignIn(ctx context.Context, token string) (*models.Session, error)
	Logout(ctx context.Context) error
}

type Handler struct {
	svc    Service
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewHandler(svc Service, logger *zap.Logger, loc *time.Location) *Handler {
	return &Handler{svc: svc, logger: logger, loc: loc, now: time.Now}
}

// Router builds the gin engine wrapped in CORS handling for origins.
func (h *Handler) Router(origins []string) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		events := api.Group("/events")
		{
			events.GET("", h.ListEvents)
			events.GET("/upcoming", h.UpcomingEvents)
			events.GET("/:ref", h.GetEvent)
			events.POST("", h.CreateEvent)
			events.PATCH("/:ref", h.EditEvent)
			events.POST("/:ref/move", h.MoveEvent)
			events.DELETE("/:ref", h.DeleteEvent)
		}

		api.POST("/sync", h.Sync)
		api.GET("/export", h.ExportJSON)
		api.GET("/export.ics", h.ExportICS)
		api.POST("/import", h.Import)

		session := api.Group("/session")
		{
			session.GET("", h.GetSession)
			session.POST("", h.SignIn)
			session.DELETE("", h.Logout)
		}
	}

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed", fields...)
			return
		}
		logger.Debug("Request handled", fields...)
	}
}

// Server runs the API until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("address", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	return s.srv.Shutdown(shutdownCtx)
}

// Package api serves the admin HTTP API and the affiliate redirect.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ksp-deals/internal/affiliate"
	"ksp-deals/internal/alerts"
	"ksp-deals/internal/models"
	"ksp-deals/internal/revenue"
	"ksp-deals/internal/scheduler"

	"github.com/gin-gonic/gin"
)

type AlertService interface {
	List(ctx context.Context, f models.AlertFilter) ([]models.AlertView, error)
	Stats(ctx context.Context) (models.AlertStats, error)
	GetDetail(ctx context.Context, id string) (*alerts.Detail, error)
	Dismiss(ctx context.Context, id string) (*models.AlertView, error)
}

type Poster interface {
	PostOne(ctx context.Context, alertID string) (*scheduler.Result, error)
	PostEligiblePending(ctx context.Context) (scheduler.BatchResult, error)
	Quota(ctx context.Context) (models.PostingQuota, error)
	UpdateSettings(ctx context.Context, st scheduler.Settings) (models.PostingQuota, error)
}

type Reports interface {
	Import(ctx context.Context, filename string, r io.Reader) (*revenue.Summary, error)
	History(ctx context.Context) ([]models.ReportImport, error)
	Stats(ctx context.Context) (models.RevenueStats, error)
}

// Store is the direct persistence the handlers read.
type Store interface {
	Ping(ctx context.Context) error
	CountProducts(ctx context.Context) (int, error)
	ProductByID(ctx context.Context, id string) (*models.Product, error)
	CreateClick(ctx context.Context, c *models.ClickTracking) error
	ListPosts(ctx context.Context, limit int) ([]models.PostRecord, error)
	PostStats(ctx context.Context, since time.Time) (models.PostStats, error)
}

const postHistoryLimit = 50

type Server struct {
	alerts  AlertService
	poster  Poster
	reports Reports
	store   Store
	links   affiliate.Links
	loc     *time.Location
	now     func() time.Time
}

func NewServer(store Store, alerts AlertService, poster Poster, reports Reports, links affiliate.Links, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	return &Server{
		alerts:  alerts,
		poster:  poster,
		reports: reports,
		store:   store,
		links:   links,
		loc:     loc,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r gin.IRouter) {
	r.GET("/health", s.Health)
	r.GET("/go/:productId", s.Redirect)

	api := r.Group("/api")
	{
		api.GET("/alerts", s.ListAlerts)
		api.GET("/alerts/stats", s.AlertStats)
		api.GET("/alerts/:id", s.GetAlert)
		api.POST("/alerts/:id/dismiss", s.DismissAlert)
	}

	tg := api.Group("/telegram")
	{
		tg.GET("/settings", s.GetSettings)
		tg.POST("/settings", s.UpdateSettings)
		tg.POST("/post", s.PostAlert)
		tg.POST("/post-pending", s.PostPending)
		tg.GET("/posts", s.ListPosts)
	}

	api.POST("/reports/import", s.ImportReport)
	api.GET("/reports/history", s.ReportHistory)
	api.GET("/revenue/stats", s.RevenueStats)
}

// Router returns a gin engine with the server routes and recovery.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	s.Routes(r)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "duration", time.Since(start))
	}
}

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, scheduler.ErrInvalidSettings),
		errors.Is(err, revenue.ErrEmptyReport),
		errors.Is(err, revenue.ErrNoUINColumn):
		return http.StatusBadRequest
	case errors.Is(err, alerts.ErrInvalidTransition),
		errors.Is(err, scheduler.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, scheduler.ErrBelowThreshold):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scheduler.ErrDeliveryFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, msg string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error(msg, "error", err)
		c.JSON(code, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func getQueryInt(name string, defaultValue int, c *gin.Context) int {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid query parameter, using default", "param", name, "value", raw, "error", err)
		return defaultValue
	}
	return v
}

func (s *Server) Health(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}
	products, err := s.store.CountProducts(ctx)
	if err != nil {
		slog.Warn("count products", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
		"products": products,
	})
}

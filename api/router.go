package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricehound/api/handler"
	"github.com/use-agent/pricehound/api/middleware"
	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/metrics"
	"github.com/use-agent/pricehound/models"
)

const internalErrorMessage = "An error occurred while processing your request"

// Deps are the services the router wires into handlers.
type Deps struct {
	Scraper   handler.Scraper
	Enricher  handler.Enricher
	Cache     *cache.Layer
	PoolStats func() models.PoolStats

	// Metrics may be nil. MetricsHandler serves /metrics when non-nil.
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

// NewRouter creates a configured Gin engine with all routes and middleware.
// Background middleware goroutines stop when ctx is done.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → Metrics
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics sit outside auth so monitoring probes always work.
func NewRouter(ctx context.Context, cfg *config.Config, deps Deps, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.CustomRecovery(recoverToJSON))
	r.Use(gin.Logger())
	r.Use(recordMetrics(deps.Metrics))

	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(deps.PoolStats, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.NewRateLimiter(ctx, cfg.RateLimit).Middleware())

	protected.GET("/products", handler.Search(deps.Scraper, deps.Enricher, deps.Cache))

	return r
}

// recoverToJSON turns a handler panic into a 500 with a generic message.
func recoverToJSON(c *gin.Context, rec any) {
	slog.Error("panic while handling request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"query", c.Request.URL.RawQuery,
		"client", c.ClientIP(),
		"panic", rec,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
		Error: internalErrorMessage,
		Code:  models.ErrCodeInternal,
	})
}

func recordMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordRequest(path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

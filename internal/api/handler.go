package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zhejian/glasslink/internal/middleware"
	"github.com/zhejian/glasslink/internal/service"
)

// Handler holds HTTP handlers and dependencies.
// It receives interfaces rather than concrete implementations for testability.
type Handler struct {
	links     service.LinkServiceInterface
	redirects service.RedirectServiceInterface
	analytics service.AnalyticsServiceInterface
	auth      service.AuthServiceInterface
	verifier  middleware.TokenVerifier
	db        DBInterface
	cache     CacheInterface
	limiter   *middleware.RateLimiter
	metrics   http.Handler
	cookies   CookiePolicy
	logger    *slog.Logger
	now       func() time.Time
}

// DBInterface defines the database operations needed for health checks.
type DBInterface interface {
	Ping(ctx context.Context) error
}

// CacheInterface defines the cache operations needed for health checks.
type CacheInterface interface {
	Ping(ctx context.Context) error
}

// Deps lists everything NewHandler wires. Cache, Limiter and Metrics are optional.
type Deps struct {
	Links     service.LinkServiceInterface
	Redirects service.RedirectServiceInterface
	Analytics service.AnalyticsServiceInterface
	Auth      service.AuthServiceInterface
	Verifier  middleware.TokenVerifier
	DB        DBInterface
	Cache     CacheInterface
	Limiter   *middleware.RateLimiter
	Metrics   http.Handler
	Cookies   CookiePolicy
	Logger    *slog.Logger
}

// NewHandler creates a new handler instance with the provided dependencies.
func NewHandler(d Deps) *Handler {
	registerValidators()

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	return &Handler{
		links:     d.Links,
		redirects: d.Redirects,
		analytics: d.Analytics,
		auth:      d.Auth,
		verifier:  d.Verifier,
		db:        d.DB,
		cache:     d.Cache,
		limiter:   d.Limiter,
		metrics:   metrics,
		cookies:   d.Cookies,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterRoutes registers all route definitions on the given Gin engine.
// The caller is responsible for creating the engine and adding middleware
// before calling this method, so middleware runs in the correct order.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.SetHTMLTemplate(errorPages)

	r.GET("/health", h.healthCheck)
	r.GET("/metrics", gin.WrapH(h.metrics))

	api := r.Group("/api")
	api.GET("/ping", h.ping)
	api.GET("/public/resolve/:code", h.limiter.Limit("redirect"), h.resolve)

	auth := api.Group("/auth")
	{
		limited := h.limiter.Limit("auth")
		auth.POST("/register", limited, h.register)
		auth.POST("/login", limited, h.login)
		auth.POST("/refresh", limited, h.refresh)
		auth.POST("/logout", h.logout)
		auth.GET("/me", middleware.Auth(h.verifier), h.me)
	}

	urls := api.Group("/urls", middleware.Auth(h.verifier))
	{
		urls.POST("", h.createLink)
		urls.GET("", h.listLinks)
		urls.GET("/:id", h.getLink)
		urls.POST("/:id/deactivate", h.deactivateLink)
		urls.DELETE("/:id", h.deleteLink)
		urls.GET("/:id/stats", h.stats)
		urls.GET("/:id/breakdown", h.breakdown)
		urls.GET("/:id/clicks", h.clicks)
	}

	// Redirect route (public) - static routes above take precedence
	r.GET("/:code", h.limiter.Limit("redirect"), h.redirect)
}

// healthCheck handles GET /health
// Response codes:
//   - 200 OK: All dependencies are healthy
//   - 503 Service Unavailable: One or more dependencies are down
func (h *Handler) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	status := "ok"
	code := http.StatusOK
	deps := gin.H{"database": "up", "cache": "disabled"}

	if err := h.db.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		deps["database"] = "down"
		h.logger.WarnContext(ctx, "database ping failed", slog.String("error", err.Error()))
	}
	if h.cache != nil {
		deps["cache"] = "up"
		if err := h.cache.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			deps["cache"] = "down"
			h.logger.WarnContext(ctx, "cache ping failed", slog.String("error", err.Error()))
		}
	}

	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// ping handles GET /api/ping
func (h *Handler) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "utc": h.now().UTC()})
}

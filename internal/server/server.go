package server

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/zhejian/glasslink/internal/api"
	"github.com/zhejian/glasslink/internal/config"
	"github.com/zhejian/glasslink/internal/middleware"
	"github.com/zhejian/glasslink/internal/repository"
	"github.com/zhejian/glasslink/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// redisPinger adapts *redis.Client to api.CacheInterface.
type redisPinger struct{ client *redis.Client }

func (r *redisPinger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Deps are the process-wide resources the router is built on.
// Cache and Publisher are optional.
type Deps struct {
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Publisher service.ClickPublisher
	Logger    *slog.Logger
	// Metrics serves /metrics. Defaults to the prometheus default gatherer.
	Metrics http.Handler
}

// NewRouter initializes all dependencies and returns a configured Gin router.
// This is useful for testing where you don't need the full HTTP server.
func NewRouter(cfg *config.Config, d Deps) (*gin.Engine, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	codes, err := service.NewShortCodeGenerator(cfg.App.ShortCodeLen, rand.Reader)
	if err != nil {
		return nil, err
	}

	baseRepo := repository.NewLinkRepository(d.DB)
	linkRepo := repository.NewCachedLinkRepository(baseRepo, d.Cache, cfg.Cache.TTL, logger)
	clickRepo := repository.NewClickRepository(d.DB)
	issuer := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.AccessTTL)

	linkService := service.NewLinkService(linkRepo, codes, cfg.App.ShortCodeRetries, cfg.App.BaseURL, logger)
	redirectService := service.NewRedirectService(linkRepo, clickRepo, d.Publisher, service.AnalyticsOptions{
		StoreClickEvents: cfg.Analytics.StoreClickEvents,
		StoreFullIP:      cfg.Analytics.StoreFullIP,
		DedupWindow:      cfg.Analytics.DedupWindow,
	}, logger)
	analyticsService := service.NewAnalyticsService(linkRepo, clickRepo)
	authService := service.NewAuthService(
		repository.NewUserRepository(d.DB),
		repository.NewTokenRepository(d.DB),
		issuer, cfg.Auth.RefreshTTL, cfg.Auth.BcryptCost, logger,
	)

	var cache api.CacheInterface
	if d.Cache != nil {
		cache = &redisPinger{client: d.Cache}
	}

	handler := api.NewHandler(api.Deps{
		Links:     linkService,
		Redirects: redirectService,
		Analytics: analyticsService,
		Auth:      authService,
		Verifier:  issuer,
		DB:        d.DB,
		Cache:     cache,
		Limiter:   middleware.NewRateLimiter(d.Cache, cfg.RateLimit, logger),
		Metrics:   d.Metrics,
		Cookies:   api.CookiePolicy{Secure: cfg.Auth.SecureCookies},
		Logger:    logger,
	})

	r := gin.New()
	// X-Forwarded-For only counts when the peer is a configured proxy
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(otelgin.Middleware(cfg.Observability.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	handler.RegisterRoutes(r)

	return r, nil
}

// NewServer initializes all dependencies and returns a configured HTTP server.
// This includes the router plus HTTP server settings (timeouts, address, etc.).
func NewServer(cfg *config.Config, d Deps) (*http.Server, error) {
	router, err := NewRouter(cfg, d)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, nil
}

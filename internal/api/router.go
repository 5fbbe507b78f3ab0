// Package api assembles the HTTP surface of the license server.
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint/internal/api/handlers"
	"github.com/keymint/keymint/internal/api/middleware"
	"github.com/keymint/keymint/internal/auth"
	"github.com/keymint/keymint/internal/gateway"
	"github.com/keymint/keymint/internal/metrics"
	"github.com/keymint/keymint/internal/revocation"
	"github.com/keymint/keymint/internal/store"
	"github.com/keymint/keymint/internal/verify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	// OperatorKeyHash authenticates the operator endpoints.
	OperatorKeyHash string
	// VerifyRateLimit bounds verify requests per client per minute.
	VerifyRateLimit int64
	// Version information for the version endpoint.
	Version string
	Commit  string
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine  *gin.Engine
	Metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRouter creates the API router with all routes registered.
func NewRouter(cfg RouterConfig, st store.Store, gw *gateway.Gateway, registry *revocation.Registry, verifier *verify.Service, logger zerolog.Logger) (*Router, error) {
	registrySet := prometheus.NewRegistry()
	m := metrics.New(registrySet)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.SecurityHeaders())

	r := &Router{
		Engine:  engine,
		Metrics: m,
		logger:  logger.With().Str("component", "api_router").Logger(),
	}

	healthHandler := handlers.NewHealthHandler(st, logger)
	healthHandler.RegisterRoutes(engine)

	engine.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{"version": cfg.Version, "commit": cfg.Commit})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registrySet, promhttp.HandlerOpts{})))

	// Public verification, rate limited.
	verifyLimiter, err := middleware.NewRateLimiter(cfg.VerifyRateLimit, "1m")
	if err != nil {
		return nil, fmt.Errorf("create verify rate limiter: %w", err)
	}
	public := engine.Group("/api/v1")
	public.Use(verifyLimiter)
	handlers.NewVerifyHandler(verifier, m, logger).RegisterRoutes(public)

	// Operator endpoints.
	validator := auth.NewOperatorKeyValidator(cfg.OperatorKeyHash)
	protected := engine.Group("/api/v1")
	protected.Use(middleware.OperatorAuth(validator, logger))
	handlers.NewEventsHandler(gw, m, logger).RegisterRoutes(protected)
	handlers.NewLicensesHandler(gw, m, logger).RegisterRoutes(protected)
	handlers.NewRevocationsHandler(registry, logger).RegisterRoutes(protected)

	return r, nil
}

package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/handlers"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/middleware"
	"github.com/soltixdb/insight/internal/services"
	"github.com/soltixdb/insight/internal/utils"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, service *services.AnalyticsService, cfg config.Config, info handlers.Info) *handlers.Handler {
	h := handlers.New(logger, service, info)

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger, logging.DefaultMiddlewareConfig()))
	app.Use(middleware.Metrics())

	// Health check and metrics (no auth required)
	app.Get("/health", h.Health)
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	authMiddleware := middleware.APIKeyAuth(logger, cfg.Auth.APIKeys, cfg.Auth.Enabled)
	v1 := app.Group("/v1", authMiddleware)

	// Aggregation Routes
	v1.Post("/aggregate", h.Aggregate)
	v1.Post("/aggregate/advanced", h.AggregateAdvanced)
	v1.Post("/timeseries", h.TimeSeries)
	v1.Get("/stats/summary", h.StatsSummary)
	v1.Get("/records/:dataType", h.Records)

	// Trend Routes
	v1.Get("/trends/:period/:metric", h.Trend)

	// Anomaly Routes
	v1.Get("/anomalies", h.DetectAnomalies)
	v1.Get("/anomalies/history", h.AlertHistory)
	v1.Patch("/anomalies/thresholds", h.UpdateThresholds)

	// Comparison Routes
	v1.Get("/compare/past", h.ComparePast)
	v1.Get("/compare/benchmark", h.CompareBenchmark)
	v1.Get("/compare/stages", h.CompareStages)
	v1.Post("/improvement", h.Improvement)
	v1.Post("/improvement/plan", h.ImprovementPlan)

	// 404 handler
	app.Use(h.NotFound)

	return h
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, service *services.AnalyticsService, cfg config.Config, info handlers.Info) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Insight",
		DisableStartupMessage: true,
		ReadTimeout:           utils.DefaultRequestTimeout,
		WriteTimeout:          utils.DefaultRequestTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, service, cfg, info)

	return app
}

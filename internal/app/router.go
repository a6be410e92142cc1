package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/handler"
	"dispatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RequestHandler *handler.RequestHandler
	CourierHandler *handler.CourierHandler
	SessionHandler *handler.SessionHandler
	IssueHandler   *handler.IssueHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	// Metrics is served on MetricsPath when set.
	Metrics     prometheus.Gatherer
	MetricsPath string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicAttributes())
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Delivery request routes.
		requests := v1.Group("/requests")
		{
			requests.POST("", deps.RequestHandler.Submit)
			requests.GET("/:id", deps.RequestHandler.Get)
			requests.GET("/:id/quote", deps.RequestHandler.Quote)
			requests.POST("/:id/cancel", deps.RequestHandler.Cancel)
			requests.POST("/:id/complete", deps.RequestHandler.Complete)
			requests.POST("/:id/resubmit", deps.RequestHandler.Resubmit)
		}

		// Courier routes.
		couriers := v1.Group("/couriers")
		{
			couriers.POST("", deps.CourierHandler.Register)
			couriers.POST("/:id/location", deps.CourierHandler.UpdateLocation)
			couriers.POST("/:id/availability", deps.CourierHandler.SetAvailability)
			couriers.GET("/:id/route", deps.CourierHandler.Route)
		}

		// Bidding session routes.
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:id", deps.SessionHandler.Get)
			sessions.POST("/:id/bids", deps.SessionHandler.SubmitBid)
			sessions.POST("/:id/close", deps.SessionHandler.Close)
		}

		// Issue routes.
		v1.POST("/issues", deps.IssueHandler.Report)
	}

	return router
}

package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newswatch/browserpool/internal/events"
	"github.com/newswatch/browserpool/internal/health"
	"github.com/newswatch/browserpool/internal/middleware"
)

func New(reporter *health.Reporter, store *events.Store, gatherer prometheus.Gatherer, apiKey string) *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Auth(apiKey))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		report, err := reporter.CheckProcesses(c.Request.Context())
		if err != nil {
			c.JSON(503, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		status := "healthy"
		code := 200
		if report.Degraded {
			status = "degraded"
			code = 503
		}
		c.JSON(code, gin.H{
			"status":    status,
			"observed":  report.Observed,
			"accounted": report.Accounted,
		})
	})

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		health.RegisterRoutes(v1, reporter, store)
	}

	return r
}

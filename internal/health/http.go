package health

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/newswatch/browserpool/internal/events"
)

func RegisterRoutes(rg *gin.RouterGroup, reporter *Reporter, store *events.Store) {
	rg.GET("/pool/stats", getPoolStats(reporter))
	rg.GET("/pool/processes", checkProcesses(reporter))
	rg.GET("/pool/sweeps", listSweeps(store))
	rg.GET("/pool/process-checks", listProcessChecks(store))
}

func getPoolStats(reporter *Reporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, reporter.Stats())
	}
}

func checkProcesses(reporter *Reporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := reporter.CheckProcesses(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func listSweeps(store *events.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "event log not configured"})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		evs, err := store.RecentSweeps(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sweeps": evs, "total": len(evs)})
	}
}

func listProcessChecks(store *events.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "event log not configured"})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		evs, err := store.RecentProcessChecks(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"checks": evs, "total": len(evs)})
	}
}

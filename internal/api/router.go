package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bankfeed/internal/config"
	"bankfeed/internal/runs"
)

// NewRouter builds the HTTP surface: an unauthenticated health check and
// the API-key-guarded run endpoints.
func NewRouter(cfg *config.Config, queue *runs.Queue) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogging())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	runHandler := NewRunHandler(queue)
	v1 := router.Group("/api/v1", APIKeyAuth(cfg.APIKey))
	{
		v1.POST("/runs", runHandler.TriggerRun)
		v1.GET("/runs", runHandler.ListRuns)
		v1.GET("/runs/:id", runHandler.GetRun)
	}

	return router
}

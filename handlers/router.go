package handlers

import (
	"net/http"

	"aidflow-backend/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the gin engine with every API route registered.
func NewRouter(apps *ApplicationHandler, docs *DocumentHandler, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if log != nil {
		r.Use(RequestLogger(log))
	}
	RegisterRoutes(r, apps, docs)
	return r
}

// RegisterRoutes mounts the health, metrics and API routes on r.
func RegisterRoutes(r *gin.Engine, apps *ApplicationHandler, docs *DocumentHandler) {
	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// Aid application endpoints
		api.POST("/aid/apply", apps.Apply)
		api.POST("/aid/apply/jobs", apps.ApplyAsync)
		api.GET("/aid/applied", apps.AppliedPrograms)
		api.GET("/applications", apps.ListApplications)
		api.POST("/eligibility/analyze", apps.AnalyzeEligibility)

		// Job endpoints
		api.GET("/jobs/:id", apps.GetJobStatus)

		// Document endpoints
		if docs != nil {
			api.POST("/documents", docs.UploadDocument)
			api.GET("/documents", docs.ListDocuments)
			api.GET("/documents/:id", docs.GetDocument)
		}
	}
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler, jwtSecret string) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		protected := api.Group("")
		protected.Use(AuthMiddleware(jwtSecret))
		{
			protected.POST("/fetch", h.RunFetch)
			protected.POST("/digest", h.RunDigest)

			protected.GET("/runs", h.ListRuns)
			protected.GET("/runs/:id", h.GetRun)

			protected.GET("/watermark", h.GetWatermark)
			protected.PUT("/watermark", h.SetWatermark)

			protected.GET("/settings/policy", h.GetPolicySettings)
		}
	}
}

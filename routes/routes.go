package routes

import (
	"site-analytics-api/controllers"
	"site-analytics-api/middleware"
	"site-analytics-api/models"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			// Authentication
			public.POST("/login", controllers.Login)

			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "Site Analytics API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// User profile
			protected.GET("/profile", controllers.GetProfile)
			protected.PUT("/change-password", controllers.ChangePassword)

			// Historical imports
			imports := protected.Group("/imports")
			{
				imports.POST("", controllers.CreateImport)
				imports.GET("", controllers.ListImports)
				imports.GET("/:id", controllers.GetImport)
				imports.DELETE("/:id", controllers.DeleteImport)
				imports.POST("/:id/cancel", controllers.CancelImport)
				imports.POST("/:id/retry", controllers.RetryImport)
				imports.POST("/:id/resume", controllers.ResumeImport)
			}

			// Google Analytics integration
			google := protected.Group("/integrations/google")
			{
				google.GET("/connect", controllers.GoogleConnect)
				google.POST("/callback", controllers.GoogleCallback)
				google.GET("/status", controllers.GoogleStatus)
				google.GET("/properties", controllers.GoogleProperties)
				google.GET("/preview", controllers.GooglePreview)
			}
			protected.DELETE("/integrations/google", controllers.GoogleDisconnect)

			// Admin maintenance
			admin := protected.Group("/admin")
			admin.Use(middleware.RequireRole(models.RoleAdmin))
			{
				admin.POST("/imports/cleanup", controllers.CleanupImports)
			}
		}
	}
}

package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arnavshah/weekly-scheduler-go/pkg/handlers"
	"github.com/arnavshah/weekly-scheduler-go/pkg/middleware"
)

// Version is reported by the root endpoint.
const Version = "3.0.0"

const maxBodyBytes = 4 << 20

// Setup builds the gin engine with every route registered.
func Setup(h *handlers.Handler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Weekly Shift Scheduler API",
			"version": Version,
		})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/admin/login", h.Login)

	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.PUT("/keys/:id", h.UpdateKeyLimit)
		admin.DELETE("/keys/:id", h.RevokeKey)
		admin.GET("/usage/:id", h.GetUsage)
		admin.GET("/events/:session", h.ListEvents)
	}

	api := r.Group("/api")
	api.Use(h.APIKeyMiddleware())
	{
		api.POST("/schedules", h.CreateSchedule)
		api.GET("/schedules/:id", h.GetSchedule)
		api.GET("/schedules/:id/csv", h.ExportCSV)
		api.GET("/schedules/:id/xlsx", h.ExportXLSX)
		api.POST("/schedules/:id/swap", h.SwapShift)
		api.POST("/schedules/:id/reset", h.ResetSchedule)
		api.DELETE("/schedules/:id", h.DeleteSchedule)
		api.POST("/validate", h.ValidateInput)
		api.GET("/usage", h.GetMyUsage)
	}

	return r
}

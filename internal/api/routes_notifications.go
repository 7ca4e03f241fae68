package api

import (
	"github.com/gin-gonic/gin"

	"github.com/clinidesk/clinidesk/internal/handlers"
	"github.com/clinidesk/clinidesk/internal/middleware"
	"github.com/clinidesk/clinidesk/internal/models"
)

func registerNotificationRoutes(api *gin.RouterGroup, deps Deps) error {
	handler, err := handlers.NewNotificationHandler(deps.Notifications, deps.Hub)
	if err != nil {
		return err
	}

	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.PATCH("/:id/read", handler.MarkRead)
		group.POST("/mark-all-read", handler.MarkAllRead)

		admin := group.Group("", middleware.RequireRole(models.RoleAdmin))
		admin.POST("", handler.Create)
		admin.POST("/broadcast", handler.Broadcast)
		admin.PATCH("/:id", handler.Update)
		admin.DELETE("/:id", handler.Delete)
		admin.GET("/stats", handler.Stats)
	}

	return nil
}

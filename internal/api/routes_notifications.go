package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, deps Deps) {
	handler := handlers.NewNotificationHandler(deps.DB)

	notifications := api.Group("/notifications")
	{
		notifications.GET("", handler.List)
		notifications.POST("/:id/read", handler.MarkRead)
		notifications.POST("/read_all", handler.MarkAllRead)
		notifications.DELETE("/:id", handler.Delete)
	}
}

package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/handlers"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/models"
)

func registerMonitoringRoutes(api *gin.RouterGroup, deps Deps) {
	handler := handlers.NewMonitoringHandler(deps.Monitoring, deps.Config)
	if handler == nil {
		return
	}

	group := api.Group("/monitoring")
	group.GET("/summary", middleware.RequireRole(deps.Users, models.RoleSystemManager), handler.Summary)
}

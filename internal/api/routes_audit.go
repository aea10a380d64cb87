package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/handlers"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/models"
)

func registerAuditRoutes(api *gin.RouterGroup, deps Deps) {
	handler := handlers.NewAuditHandler(deps.Audit)
	api.GET("/audit", middleware.RequireRole(deps.Users, models.RoleSystemManager), handler.List)
}

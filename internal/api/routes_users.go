package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/handlers"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/models"
)

func registerUserRoutes(api *gin.RouterGroup, deps Deps) {
	handler := handlers.NewUserHandler(deps.Users, deps.Login)
	manager := middleware.RequireRole(deps.Users, models.RoleSystemManager)

	users := api.Group("/users")
	{
		users.GET("", handler.List)
		users.GET("/:name", handler.Get)
		users.POST("", manager, handler.Create)
		users.PATCH("/:name", manager, handler.Update)
		users.DELETE("/:name", manager, handler.Delete)
		users.POST("/:name/rename", manager, handler.Rename)
		users.POST("/:name/keys", manager, handler.GenerateKeys)
		// Administrator-only; the handler rejects everyone else.
		users.POST("/:name/impersonate", handler.Impersonate)
	}
}

package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/handlers"
)

func registerAuthRoutes(engine *gin.Engine, api *gin.RouterGroup, deps Deps) {
	handler := handlers.NewAuthHandler(deps.Login, deps.Sessions, deps.Users)

	auth := engine.Group("/api/auth")
	{
		auth.POST("/login", handler.Login)
		auth.POST("/refresh", handler.Refresh)
	}

	api.GET("/auth/me", handler.Me)
	api.POST("/auth/logout", handler.Logout)

	api.GET("/sessions/me", handler.ListMySessions)
	api.POST("/sessions/revoke/:id", handler.RevokeSession)
	api.POST("/sessions/revoke_all", handler.RevokeAllSessions)
}

package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/handlers"
	"github.com/wardenhq/warden/internal/middleware"
)

// Reset requests are throttled harder than the global limiter: the
// endpoint sends email and must not become a guessing oracle.
const (
	resetRequestsPerHour  = 10
	signupRequestsPerHour = 30
)

func registerAccountRoutes(engine *gin.Engine, api *gin.RouterGroup, deps Deps) {
	handler := handlers.NewAccountHandler(deps.Users, deps.Reset, deps.Login)

	account := engine.Group("/api/account")
	{
		account.POST("/sign-up",
			middleware.RateLimitWithStore(deps.RateStore, signupRequestsPerHour, time.Hour),
			handler.SignUp)
		account.POST("/reset-password",
			middleware.RateLimitWithStore(deps.RateStore, resetRequestsPerHour, time.Hour),
			handler.ResetPassword)
		// Key-holders reach this anonymously; session users hit the
		// same route with their old password and a Bearer token.
		account.POST("/update-password",
			middleware.OptionalAuth(deps.JWT, deps.Users),
			handler.UpdatePassword)
	}

	api.POST("/account/verify-password", handler.VerifyPassword)
	api.PATCH("/account/theme", handler.SwitchTheme)
}

package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wardenhq/warden/pkg/logger"
	"github.com/wardenhq/warden/pkg/response"
)

// Recovery turns handler panics into a generic 500 so internals never
// reach the client, and logs the value that escaped.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithModule("http").Error("panic",
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", r),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
					Success: false,
					Error: &response.ErrorInfo{
						Code:    "INTERNAL_SERVER_ERROR",
						Message: "Internal server error",
					},
				})
			}
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with a JSON 404 instead of
// gin's plain-text default.
func NotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, response.Response{
		Success: false,
		Error: &response.ErrorInfo{
			Code:    "NOT_FOUND",
			Message: fmt.Sprintf("route %s not found", c.Request.URL.Path),
		},
	})
}

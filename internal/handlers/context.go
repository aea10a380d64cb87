package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

// requestContext unwraps the request context, falling back to a
// background context when a handler is exercised without a request.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

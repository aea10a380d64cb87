package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/metrics"
	"github.com/wardenhq/warden/pkg/response"
)

// RoleChecker reports whether an account carries a role.
type RoleChecker interface {
	HasRole(ctx context.Context, name, role string) (bool, error)
}

// RequireRole admits only authenticated accounts that carry the given role.
func RequireRole(checker RoleChecker, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := CurrentUser(c)
		if name == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		allowed, err := checker.HasRole(c.Request.Context(), name, role)
		if err != nil {
			metrics.RoleChecks.WithLabelValues(role, "error").Inc()
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": gin.H{"code": errors.ErrInternalServer.Code, "message": "role check failed"}})
			return
		}
		if !allowed {
			metrics.RoleChecks.WithLabelValues(role, "denied").Inc()
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		metrics.RoleChecks.WithLabelValues(role, "allowed").Inc()
		c.Next()
	}
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeRoles struct {
	grants map[string][]string
}

func (f *fakeRoles) HasRole(_ context.Context, name, role string) (bool, error) {
	for _, r := range f.grants[name] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	checker := &fakeRoles{grants: map[string][]string{
		"manager@example.com": {"System Manager"},
	}}

	r := gin.New()
	asUser := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if name != "" {
				c.Set(CtxUserKey, name)
			}
		}
	}
	r.GET("/admin", asUser("manager@example.com"), RequireRole(checker, "System Manager"), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin-as-member", asUser("member@example.com"), RequireRole(checker, "System Manager"), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin-anonymous", asUser(""), RequireRole(checker, "System Manager"), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin-as-member", nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin-anonymous", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

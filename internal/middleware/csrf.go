package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wardenhq/warden/pkg/crypto"
	"github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/logger"
	"github.com/wardenhq/warden/pkg/response"
)

const (
	// CSRFCookieName carries the token to the client.
	CSRFCookieName = "warden_csrf"
	// CSRFHeaderName must echo the cookie token on unsafe methods.
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenLength  = 48
	csrfCookieMaxAge = 12 * 60 * 60 // seconds
)

// CSRF applies the double-submit-cookie pattern. Safe methods are
// handed a token via cookie and response header; POST, PUT, PATCH, and
// DELETE must echo it in CSRFHeaderName. OPTIONS passes through for
// CORS preflight.
func CSRF() gin.HandlerFunc {
	log := logger.WithModule("csrf")

	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodOptions {
			c.Next()
			return
		}

		token, issued, err := ensureCSRFCookie(c)
		if err != nil {
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}

		if !mutatesState(method) {
			c.Header(CSRFHeaderName, token)
			c.Next()
			return
		}

		presented := strings.TrimSpace(c.GetHeader(CSRFHeaderName))
		if !tokensMatch(token, presented) {
			// Token values stay out of the log.
			log.Warn("csrf validation failed",
				zap.String("method", method),
				zap.String("path", c.FullPath()),
				zap.Bool("cookie_issued", issued),
			)
			response.Error(c, errors.ErrCSRFInvalid)
			c.Abort()
			return
		}

		c.Next()
	}
}

func mutatesState(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func ensureCSRFCookie(c *gin.Context) (token string, issued bool, err error) {
	if existing, err := c.Cookie(CSRFCookieName); err == nil && existing != "" {
		setCSRFCookie(c, existing)
		return existing, false, nil
	}

	token, err = crypto.GenerateToken(csrfTokenLength)
	if err != nil {
		return "", false, err
	}
	setCSRFCookie(c, token)
	return token, true, nil
}

func setCSRFCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   requestIsSecure(c.Request),
		HttpOnly: false,
		MaxAge:   csrfCookieMaxAge,
		SameSite: http.SameSiteStrictMode,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func tokensMatch(expected, presented string) bool {
	if expected == "" || presented == "" {
		return false
	}
	if len(expected) != len(presented) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/auditctx"
	iauth "github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserKey      = "authUser"
	CtxSessionIDKey = "sessionID"
)

// APICredentialVerifier resolves an api_key/api_secret pair to an
// enabled account.
type APICredentialVerifier interface {
	VerifyAPICredentials(ctx context.Context, apiKey, apiSecret string) (*models.User, error)
}

// Auth enforces authentication. Interactive clients present a Bearer
// JWT; API clients present "token <api_key>:<api_secret>".
func Auth(jwt *iauth.JWTService, verifier APICredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := strings.TrimSpace(c.GetHeader("Authorization"))
		switch {
		case len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer "):
			bearerAuth(c, jwt, strings.TrimSpace(authz[7:]))
		case len(authz) > 6 && strings.EqualFold(authz[:6], "token "):
			keyPairAuth(c, verifier, strings.TrimSpace(authz[6:]))
		default:
			unauthorized(c)
		}
	}
}

func bearerAuth(c *gin.Context, jwt *iauth.JWTService, token string) {
	if jwt == nil {
		unauthorized(c)
		return
	}

	claims, err := jwt.ValidateAccessToken(token)
	if err != nil {
		// Normalise all validation failures to 401
		unauthorized(c)
		return
	}

	c.Set(CtxClaimsKey, claims)
	c.Set(CtxUserKey, claims.UserName)
	if claims.SessionID != "" {
		c.Set(CtxSessionIDKey, claims.SessionID)
	}
	propagateActor(c, claims.UserName)

	c.Next()
}

func keyPairAuth(c *gin.Context, verifier APICredentialVerifier, pair string) {
	if verifier == nil {
		unauthorized(c)
		return
	}

	apiKey, apiSecret, found := strings.Cut(pair, ":")
	if !found {
		unauthorized(c)
		return
	}

	user, err := verifier.VerifyAPICredentials(c.Request.Context(), apiKey, apiSecret)
	if err != nil {
		unauthorized(c)
		return
	}

	c.Set(CtxUserKey, user.Name)
	propagateActor(c, user.Name)

	c.Next()
}

// OptionalAuth resolves credentials when the request presents any but
// admits anonymous requests untouched. The update-password route serves
// reset-key holders and logged-in users alike, so it cannot demand a
// session up front. A presented-but-invalid credential still fails.
func OptionalAuth(jwt *iauth.JWTService, verifier APICredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := strings.TrimSpace(c.GetHeader("Authorization"))
		switch {
		case len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer "):
			bearerAuth(c, jwt, strings.TrimSpace(authz[7:]))
		case len(authz) > 6 && strings.EqualFold(authz[:6], "token "):
			keyPairAuth(c, verifier, strings.TrimSpace(authz[6:]))
		default:
			c.Next()
		}
	}
}

// propagateActor carries the authenticated account into the request
// context so the services can attribute writes and audit entries.
func propagateActor(c *gin.Context, name string) {
	actor := auditctx.Actor{
		UserName:  name,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), actor))
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, errors.ErrUnauthorized)
	c.Abort()
}

// CurrentUser returns the authenticated account name, empty when the
// request is anonymous.
func CurrentUser(c *gin.Context) string {
	name, _ := c.Get(CtxUserKey)
	if s, ok := name.(string); ok {
		return s
	}
	return ""
}

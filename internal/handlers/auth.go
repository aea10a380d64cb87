package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/users"
	appErrors "github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/response"
)

// AuthHandler manages authentication flows (login/refresh/logout/me)
// and the caller's own sessions.
type AuthHandler struct {
	login    *iauth.LoginManager
	sessions *iauth.SessionService
	users    *users.UserService
}

func NewAuthHandler(login *iauth.LoginManager, sessions *iauth.SessionService, userService *users.UserService) *AuthHandler {
	return &AuthHandler{login: login, sessions: sessions, users: userService}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
	Device     string `json:"device" validate:"omitempty,max=140"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" {
		response.Error(c, appErrors.NewBadRequest("identifier is required"))
		return
	}

	pair, session, err := h.login.Login(requestContext(c), req.Identifier, req.Password, sessionMetadata(c, req.Device))
	if err != nil {
		// Login failures carry their own status and wording, including
		// IP and login-hour restrictions. Pass them through unchanged.
		response.Error(c, err)
		return
	}

	user, err := h.users.Get(requestContext(c), session.UserName)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		"user":   marshalAccount(user),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		response.Error(c, appErrors.NewBadRequest("refresh token is required"))
		return
	}

	pair, _, err := h.sessions.RefreshSession(req.RefreshToken)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := c.GetString(middleware.CtxSessionIDKey)
	if sid == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.login.Logout(requestContext(c), sid); err != nil && !errors.Is(err, iauth.ErrSessionNotFound) {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	name := middleware.CurrentUser(c)
	if name == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.Get(requestContext(c), name)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, marshalAccount(user))
}

// GET /api/auth/sessions
func (h *AuthHandler) ListMySessions(c *gin.Context) {
	name := middleware.CurrentUser(c)
	if name == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.sessions.ListUserSessions(requestContext(c), name)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, sessions)
}

// POST /api/auth/sessions/revoke/:id
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	name := middleware.CurrentUser(c)
	if name == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	// Only the owner may revoke a session by id.
	id := c.Param("id")
	sessions, err := h.sessions.ListUserSessions(requestContext(c), name)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	owned := false
	for _, s := range sessions {
		if s.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	if err := h.sessions.RevokeSession(id); err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// POST /api/auth/sessions/revoke_all
func (h *AuthHandler) RevokeAllSessions(c *gin.Context) {
	name := middleware.CurrentUser(c)
	if name == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.login.LogoutUser(requestContext(c), name); err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

func sessionMetadata(c *gin.Context, device string) iauth.SessionMetadata {
	return iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Device:    strings.TrimSpace(device),
	}
}

func marshalAccount(user *models.User) gin.H {
	if user == nil {
		return gin.H{}
	}

	return gin.H{
		"name":          user.Name,
		"email":         user.Email,
		"full_name":     user.DisplayName(),
		"first_name":    user.FirstName,
		"last_name":     user.LastName,
		"username":      user.Username,
		"user_type":     user.UserType,
		"enabled":       user.Enabled,
		"user_image":    user.UserImage,
		"desk_theme":    user.DeskTheme,
		"language":      user.Language,
		"time_zone":     user.TimeZone,
		"roles":         user.RoleNames(),
		"last_login_at": user.LastLoginAt,
	}
}

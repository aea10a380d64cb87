package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/users"
	appErrors "github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/response"
)

// AccountHandler exposes the self-service account flows: sign-up,
// password reset, password change, and theme selection.
type AccountHandler struct {
	users *users.UserService
	reset *users.ResetService
	login *iauth.LoginManager
}

func NewAccountHandler(userService *users.UserService, reset *users.ResetService, login *iauth.LoginManager) *AccountHandler {
	return &AccountHandler{users: userService, reset: reset, login: login}
}

type signUpRequest struct {
	Email      string `json:"email" validate:"required,email"`
	FirstName  string `json:"first_name" validate:"required,max=140"`
	LastName   string `json:"last_name" validate:"omitempty,max=140"`
	RedirectTo string `json:"redirect_to" validate:"omitempty,max=512"`
	University string `json:"university" validate:"omitempty,max=140"`
	Major      string `json:"major" validate:"omitempty,max=140"`
}

// POST /api/account/sign-up
func (h *AccountHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	code, message, err := h.users.SignUp(requestContext(c), users.SignUpInput{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		RedirectTo: req.RedirectTo,
		University: req.University,
		Major:      req.Major,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"code": code, "message": message})
}

type resetPasswordRequest struct {
	User string `json:"user" validate:"required,max=140"`
}

// POST /api/account/reset-password
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.User))
	display, err := h.reset.RequestReset(requestContext(c), name)
	switch {
	case err == nil:
		response.SuccessMessage(c, http.StatusOK,
			fmt.Sprintf("Password reset instructions have been sent to %s's email", display))
	case errors.Is(err, users.ErrUserNotFound):
		response.Error(c, appErrors.ErrNotFound.WithMessage("not found"))
	case errors.Is(err, appErrors.ErrProtectedUser):
		response.Error(c, appErrors.ErrProtectedUser.WithMessage("not allowed"))
	case errors.Is(err, appErrors.ErrUserDisabled):
		response.Error(c, appErrors.ErrUserDisabled.WithMessage("disabled"))
	default:
		response.Error(c, err)
	}
}

type updatePasswordRequest struct {
	NewPassword       string `json:"new_password" validate:"required"`
	Key               string `json:"key" validate:"omitempty,max=512"`
	OldPassword       string `json:"old_password" validate:"omitempty"`
	LogoutAllSessions bool   `json:"logout_all_sessions"`
}

// POST /api/account/update-password
//
// Identified either by a reset key (anonymous) or by the session user's
// current password. On success the account gets a fresh session and the
// client is told where to land.
func (h *AccountHandler) UpdatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.reset.UpdatePassword(requestContext(c), users.UpdatePasswordInput{
		NewPassword:       req.NewPassword,
		Key:               strings.TrimSpace(req.Key),
		OldPassword:       req.OldPassword,
		SessionUser:       middleware.CurrentUser(c),
		LogoutAllSessions: req.LogoutAllSessions,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.LogoutAllSessions {
		if err := h.login.LogoutUser(requestContext(c), result.UserName); err != nil {
			response.Error(c, appErrors.ErrInternalServer)
			return
		}
	}

	// The password is already updated at this point. A failure to open
	// the session still surfaces, matching the restrictions a normal
	// login would hit.
	pair, _, err := h.login.LoginAs(requestContext(c), result.UserName, sessionMetadata(c, ""))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"redirect_to": result.RedirectTo,
		"tokens":      tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
	})
}

type verifyPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// POST /api/account/verify-password
func (h *AccountHandler) VerifyPassword(c *gin.Context) {
	var req verifyPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	name := middleware.CurrentUser(c)
	if name == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.reset.VerifyOldPassword(requestContext(c), name, req.Password); err != nil {
		response.Error(c, appErrors.ErrInvalidCredentials)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

type switchThemeRequest struct {
	Theme string `json:"theme" validate:"required,max=40"`
}

// PATCH /api/account/theme
func (h *AccountHandler) SwitchTheme(c *gin.Context) {
	var req switchThemeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	name := middleware.CurrentUser(c)
	if name == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.users.SwitchTheme(requestContext(c), name, req.Theme); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"theme": req.Theme})
}

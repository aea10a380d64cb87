package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/users"
	appErrors "github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/response"
)

// UserHandler exposes the administrative account surface: CRUD, rename,
// API key rotation, and impersonation.
type UserHandler struct {
	users *users.UserService
	login *iauth.LoginManager
}

func NewUserHandler(userService *users.UserService, login *iauth.LoginManager) *UserHandler {
	return &UserHandler{users: userService, login: login}
}

type createUserRequest struct {
	Email      string `json:"email" validate:"required,email"`
	FirstName  string `json:"first_name" validate:"required,max=140"`
	MiddleName string `json:"middle_name" validate:"omitempty,max=140"`
	LastName   string `json:"last_name" validate:"omitempty,max=140"`

	Password string `json:"new_password" validate:"omitempty"`
	Username string `json:"username" validate:"omitempty,max=140"`
	UserType string `json:"user_type" validate:"omitempty,max=40"`

	Roles           []string `json:"roles" validate:"omitempty,dive,max=140"`
	RoleProfiles    []string `json:"role_profiles" validate:"omitempty,dive,max=140"`
	RoleProfileName string   `json:"role_profile_name" validate:"omitempty,max=140"`
	ModuleProfile   string   `json:"module_profile" validate:"omitempty,max=140"`

	Language  string `json:"language" validate:"omitempty,max=40"`
	TimeZone  string `json:"time_zone" validate:"omitempty,max=64"`
	UserImage string `json:"user_image" validate:"omitempty,max=512"`
	DeskTheme string `json:"desk_theme" validate:"omitempty,max=40"`

	Phone     string     `json:"phone" validate:"omitempty,max=40"`
	MobileNo  string     `json:"mobile_no" validate:"omitempty,max=40"`
	Gender    string     `json:"gender" validate:"omitempty,max=40"`
	BirthDate *time.Time `json:"birth_date"`
	Location  string     `json:"location" validate:"omitempty,max=140"`
	Interest  string     `json:"interest" validate:"omitempty,max=140"`
	Bio       string     `json:"bio" validate:"omitempty,max=2048"`

	Enabled          *bool `json:"enabled"`
	SendWelcomeEmail *bool `json:"send_welcome_email"`
}

type updateUserRequest struct {
	FirstName  *string `json:"first_name" validate:"omitempty,max=140"`
	MiddleName *string `json:"middle_name" validate:"omitempty,max=140"`
	LastName   *string `json:"last_name" validate:"omitempty,max=140"`

	NewPassword *string `json:"new_password"`
	Username    *string `json:"username" validate:"omitempty,max=140"`
	UserType    *string `json:"user_type" validate:"omitempty,max=40"`

	Roles           *[]string `json:"roles" validate:"omitempty,dive,max=140"`
	RoleProfiles    *[]string `json:"role_profiles" validate:"omitempty,dive,max=140"`
	RoleProfileName *string   `json:"role_profile_name" validate:"omitempty,max=140"`
	ModuleProfile   *string   `json:"module_profile" validate:"omitempty,max=140"`
	BlockModules    *[]string `json:"block_modules" validate:"omitempty,dive,max=140"`

	Language  *string `json:"language" validate:"omitempty,max=40"`
	TimeZone  *string `json:"time_zone" validate:"omitempty,max=64"`
	UserImage *string `json:"user_image" validate:"omitempty,max=512"`
	DeskTheme *string `json:"desk_theme" validate:"omitempty,max=40"`

	Phone     *string    `json:"phone" validate:"omitempty,max=40"`
	MobileNo  *string    `json:"mobile_no" validate:"omitempty,max=40"`
	Gender    *string    `json:"gender" validate:"omitempty,max=40"`
	BirthDate *time.Time `json:"birth_date"`
	Location  *string    `json:"location" validate:"omitempty,max=140"`
	Interest  *string    `json:"interest" validate:"omitempty,max=140"`
	Bio       *string    `json:"bio" validate:"omitempty,max=2048"`

	Enabled              *bool   `json:"enabled"`
	LogoutAllSessions    *bool   `json:"logout_all_sessions"`
	SendWelcomeEmail     *bool   `json:"send_welcome_email"`
	AllowInMentions      *bool   `json:"allow_in_mentions"`
	MuteSounds           *bool   `json:"mute_sounds"`
	SendMeACopy          *bool   `json:"send_me_a_copy"`
	ThreadNotify         *bool   `json:"thread_notify"`
	SimultaneousSessions *int    `json:"simultaneous_sessions" validate:"omitempty,min=1,max=100"`
	RestrictIP           *string `json:"restrict_ip" validate:"omitempty,max=512"`
	LoginAfter           *int    `json:"login_after" validate:"omitempty,min=0,max=24"`
	LoginBefore          *int    `json:"login_before" validate:"omitempty,min=0,max=24"`
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	filters := users.UserFilters{
		UserType: strings.TrimSpace(c.Query("user_type")),
		Query:    strings.TrimSpace(c.Query("q")),
	}
	if v := strings.TrimSpace(c.Query("enabled")); v != "" {
		enabled := v == "1" || strings.EqualFold(v, "true")
		filters.Enabled = &enabled
	}

	// The built-in accounts only show up for managers who ask.
	if c.Query("include_reserved") != "" && h.isManager(c) {
		filters.IncludeReserved = true
	}

	list, total, err := h.users.List(requestContext(c), users.ListUsersOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  filters,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, list, &response.Meta{Page: page, PerPage: perPage, Total: int(total)})
}

// GET /api/users/:name
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(requestContext(c), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	result, err := h.users.Create(requestContext(c), users.CreateUserInput{
		Email:            body.Email,
		FirstName:        body.FirstName,
		MiddleName:       body.MiddleName,
		LastName:         body.LastName,
		Password:         body.Password,
		Username:         body.Username,
		UserType:         body.UserType,
		Roles:            body.Roles,
		RoleProfiles:     body.RoleProfiles,
		RoleProfileName:  body.RoleProfileName,
		ModuleProfile:    body.ModuleProfile,
		Language:         body.Language,
		TimeZone:         body.TimeZone,
		UserImage:        body.UserImage,
		DeskTheme:        body.DeskTheme,
		Phone:            body.Phone,
		MobileNo:         body.MobileNo,
		Gender:           body.Gender,
		BirthDate:        body.BirthDate,
		Location:         body.Location,
		Interest:         body.Interest,
		Bio:              body.Bio,
		Enabled:          body.Enabled,
		SendWelcomeEmail: body.SendWelcomeEmail,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"user": result.User, "warnings": result.Warnings})
}

// PATCH /api/users/:name
func (h *UserHandler) Update(c *gin.Context) {
	var body updateUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	result, err := h.users.Update(requestContext(c), c.Param("name"), func(user *models.User) error {
		applyUserPatch(user, &body)
		return nil
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": result.User, "warnings": result.Warnings})
}

// DELETE /api/users/:name
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.users.Delete(requestContext(c), c.Param("name")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type renameUserRequest struct {
	NewName string `json:"new_name" validate:"required,max=140"`
}

// POST /api/users/:name/rename
func (h *UserHandler) Rename(c *gin.Context) {
	var body renameUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.Rename(requestContext(c), c.Param("name"), body.NewName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/users/:name/keys
//
// The raw secret appears in this response and nowhere else.
func (h *UserHandler) GenerateKeys(c *gin.Context) {
	pair, err := h.users.GenerateKeys(requestContext(c), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pair)
}

type impersonateRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

// POST /api/users/:name/impersonate
func (h *UserHandler) Impersonate(c *gin.Context) {
	var body impersonateRequest
	if !bindAndValidate(c, &body) {
		return
	}

	pair, session, err := h.login.Impersonate(requestContext(c), c.Param("name"), body.Reason, sessionMetadata(c, ""))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		"user":   session.UserName,
	})
}

func (h *UserHandler) isManager(c *gin.Context) bool {
	name := middleware.CurrentUser(c)
	if name == "" {
		return false
	}
	if name == identity.Administrator {
		return true
	}
	ok, err := h.users.HasRole(requestContext(c), name, models.RoleSystemManager)
	return err == nil && ok
}

func applyUserPatch(user *models.User, body *updateUserRequest) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}

	setString(&user.FirstName, body.FirstName)
	setString(&user.MiddleName, body.MiddleName)
	setString(&user.LastName, body.LastName)
	setString(&user.Username, body.Username)
	setString(&user.UserType, body.UserType)
	setString(&user.RoleProfileName, body.RoleProfileName)
	setString(&user.ModuleProfileName, body.ModuleProfile)
	setString(&user.Language, body.Language)
	setString(&user.TimeZone, body.TimeZone)
	setString(&user.UserImage, body.UserImage)
	setString(&user.DeskTheme, body.DeskTheme)
	setString(&user.Phone, body.Phone)
	setString(&user.MobileNo, body.MobileNo)
	setString(&user.Gender, body.Gender)
	setString(&user.Location, body.Location)
	setString(&user.Interest, body.Interest)
	setString(&user.Bio, body.Bio)
	setString(&user.RestrictIP, body.RestrictIP)

	if body.NewPassword != nil {
		user.NewPassword = *body.NewPassword
	}
	if body.BirthDate != nil {
		user.BirthDate = body.BirthDate
	}
	if body.Roles != nil {
		user.Roles = make([]models.UserRole, 0, len(*body.Roles))
		for _, role := range *body.Roles {
			user.Roles = append(user.Roles, models.UserRole{Role: role})
		}
	}
	if body.RoleProfiles != nil {
		user.RoleProfiles = make([]models.UserRoleProfile, 0, len(*body.RoleProfiles))
		for _, profile := range *body.RoleProfiles {
			user.RoleProfiles = append(user.RoleProfiles, models.UserRoleProfile{RoleProfile: profile})
		}
	}
	if body.BlockModules != nil {
		user.BlockedModules = make([]models.BlockedModule, 0, len(*body.BlockModules))
		for _, module := range *body.BlockModules {
			user.BlockedModules = append(user.BlockedModules, models.BlockedModule{Module: module})
		}
	}

	if body.Enabled != nil {
		user.Enabled = *body.Enabled
	}
	if body.LogoutAllSessions != nil {
		user.LogoutAllSessions = *body.LogoutAllSessions
	}
	if body.SendWelcomeEmail != nil {
		user.SendWelcomeEmail = *body.SendWelcomeEmail
	}
	if body.AllowInMentions != nil {
		user.AllowInMentions = *body.AllowInMentions
	}
	if body.MuteSounds != nil {
		user.MuteSounds = *body.MuteSounds
	}
	if body.SendMeACopy != nil {
		user.SendMeACopy = *body.SendMeACopy
	}
	if body.ThreadNotify != nil {
		user.ThreadNotify = *body.ThreadNotify
	}
	if body.SimultaneousSessions != nil {
		user.SimultaneousSessions = *body.SimultaneousSessions
	}
	if body.LoginAfter != nil {
		user.LoginAfter = *body.LoginAfter
	}
	if body.LoginBefore != nil {
		user.LoginBefore = *body.LoginBefore
	}
}

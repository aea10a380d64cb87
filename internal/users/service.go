package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wardenhq/warden/internal/auditctx"
	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/jobs"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/crypto"
	apperrors "github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/logger"
	"github.com/wardenhq/warden/pkg/mail"
	"github.com/wardenhq/warden/pkg/metrics"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)

// SessionTerminator ends a user's sessions when the account is disabled
// or its password rotated.
type SessionTerminator interface {
	LogoutUser(ctx context.Context, name string) error
}

// Enqueuer defers work until after the triggering save has returned.
// *jobs.Queue satisfies it.
type Enqueuer interface {
	Enqueue(job jobs.Job) bool
}

// CreateUserInput describes the fields accepted when creating a user.
// Email and FirstName are mandatory, everything else is optional.
type CreateUserInput struct {
	Email      string
	FirstName  string
	MiddleName string
	LastName   string

	Password string
	Username string
	UserType string

	Roles           []string
	RoleProfiles    []string
	RoleProfileName string
	ModuleProfile   string

	Language  string
	TimeZone  string
	UserImage string
	DeskTheme string

	Phone     string
	MobileNo  string
	Gender    string
	BirthDate *time.Time
	Location  string
	Interest  string
	Bio       string

	Enabled            *bool
	SendWelcomeEmail   *bool
	LogoutAllSessions  *bool
	SkipPasswordPolicy bool
}

// SaveResult carries the persisted row together with the non-fatal
// messages the pipeline collected.
type SaveResult struct {
	User     *models.User
	Warnings []string
}

// UserFilters captures listing filters.
type UserFilters struct {
	Enabled         *bool
	UserType        string
	Query           string
	IncludeReserved bool
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserService owns the account lifecycle: create, update, delete, and
// rename, plus the side effects each one fans out to.
type UserService struct {
	db       *gorm.DB
	pipeline *Pipeline
	reset    *ResetService
	audit    *AuditService
	aside    *cache.Aside
	queue    Enqueuer
	sessions SessionTerminator
	mailer   mail.Mailer
	http     *resty.Client
	sealer   *crypto.Sealer

	siteName     string
	gravatarBase string
	now          func() time.Time
	log          *zap.Logger
}

// UserOption customises the user service.
type UserOption func(*UserService)

// WithAudit records lifecycle events to the audit trail.
func WithAudit(audit *AuditService) UserOption {
	return func(s *UserService) { s.audit = audit }
}

// WithCache wires the cache used for derived user lists.
func WithCache(aside *cache.Aside) UserOption {
	return func(s *UserService) { s.aside = aside }
}

// WithQueue enables post-save background jobs.
func WithQueue(queue Enqueuer) UserOption {
	return func(s *UserService) { s.queue = queue }
}

// WithSessions wires session termination for disables and password
// rotations.
func WithSessions(sessions SessionTerminator) UserOption {
	return func(s *UserService) { s.sessions = sessions }
}

// WithMailer enables welcome emails.
func WithMailer(m mail.Mailer) UserOption {
	return func(s *UserService) { s.mailer = m }
}

// WithSealer stores API secrets sealed instead of hashed, so clients
// can be handed the same secret again if an operator recovers it.
func WithSealer(sealer *crypto.Sealer) UserOption {
	return func(s *UserService) { s.sealer = sealer }
}

// WithSiteName names the installation in welcome email subjects.
func WithSiteName(name string) UserOption {
	return func(s *UserService) { s.siteName = strings.TrimSpace(name) }
}

// WithHTTPClient overrides the outbound HTTP client used for avatar
// lookups.
func WithHTTPClient(client *resty.Client) UserOption {
	return func(s *UserService) {
		if client != nil {
			s.http = client
		}
	}
}

// WithGravatarBase points avatar lookups at an alternate host.
func WithGravatarBase(base string) UserOption {
	return func(s *UserService) {
		if base != "" {
			s.gravatarBase = strings.TrimRight(base, "/")
		}
	}
}

// WithServiceClock overrides the time source.
func WithServiceClock(now func() time.Time) UserOption {
	return func(s *UserService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, pipeline *Pipeline, reset *ResetService, opts ...UserOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if pipeline == nil {
		return nil, errors.New("user service: pipeline is required")
	}
	if reset == nil {
		return nil, errors.New("user service: reset service is required")
	}

	s := &UserService{
		db:           db,
		pipeline:     pipeline,
		reset:        reset,
		gravatarBase: "https://secure.gravatar.com",
		now:          time.Now,
		log:          logger.WithModule("users"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.http == nil {
		s.http = resty.New().SetTimeout(10 * time.Second)
	}
	return s, nil
}

// Create provisions a new account. The pipeline derives the account name
// from the email, so the caller never supplies one.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*SaveResult, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.Email) == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.FirstName) == "" {
		return nil, apperrors.NewBadRequest("first name is required")
	}

	user := s.buildUser(ctx, input)
	draft := &Draft{
		User:               user,
		IsNew:              true,
		SkipPasswordPolicy: input.SkipPasswordPolicy,
	}

	if err := s.pipeline.Run(ctx, draft); err != nil {
		metrics.UserSaves.WithLabelValues("create", "rejected").Inc()
		return nil, err
	}

	if draft.NewPassword != "" {
		hash, err := crypto.HashPassword(draft.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("user service: hash password: %w", err)
		}
		user.Password = hash
	}
	claimChildRows(user)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})
	if err != nil {
		metrics.UserSaves.WithLabelValues("create", "failure").Inc()
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict(fmt.Sprintf("User %s already exists", user.Name))
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	metrics.UserSaves.WithLabelValues("create", "success").Inc()
	s.afterSave(ctx, draft)

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.create",
		Resource: user.Name,
		Result:   "success",
		Metadata: map[string]any{
			"user_type": user.UserType,
			"roles":     user.RoleNames(),
		},
	})

	return &SaveResult{User: user, Warnings: draft.Warnings}, nil
}

// Update loads the account, lets the caller mutate it, and persists the
// result through the pipeline. The stored row must be unchanged since
// the load or the save fails with ErrModified.
func (s *UserService) Update(ctx context.Context, name string, mutate func(*models.User) error) (*SaveResult, error) {
	ctx = ensureContext(ctx)

	user, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	prior := cloneUser(user)
	readStamp := user.UpdatedAt

	if mutate != nil {
		if err := mutate(user); err != nil {
			return nil, err
		}
	}
	if user.Name != prior.Name {
		return nil, apperrors.NewBadRequest("User name cannot be changed on save, use rename")
	}

	draft := &Draft{User: user, Prior: prior}
	if err := s.pipeline.Run(ctx, draft); err != nil {
		metrics.UserSaves.WithLabelValues("update", "rejected").Inc()
		return nil, err
	}

	if draft.NewPassword != "" {
		hash, err := crypto.HashPassword(draft.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("user service: hash password: %w", err)
		}
		user.Password = hash
		if user.LogoutAllSessions {
			draft.LogoutSessions = true
		}
	}

	if actor, ok := auditctx.FromContext(ctx); ok && actor.UserName != "" {
		user.ModifiedBy = actor.UserName
	}
	claimChildRows(user)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.User
		if err := tx.Select("updated_at").Take(&current, "name = ?", user.Name).Error; err != nil {
			return err
		}
		if !current.UpdatedAt.Equal(readStamp) {
			return apperrors.ErrModified
		}

		if err := tx.Omit(clause.Associations).Save(user).Error; err != nil {
			return err
		}
		return replaceChildRows(tx, user)
	})
	if err != nil {
		metrics.UserSaves.WithLabelValues("update", "failure").Inc()
		if errors.Is(err, apperrors.ErrModified) {
			return nil, apperrors.ErrModified
		}
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict(fmt.Sprintf("User %s already exists", user.Name))
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	metrics.UserSaves.WithLabelValues("update", "success").Inc()
	s.afterSave(ctx, draft)

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.update",
		Resource: user.Name,
		Result:   "success",
	})

	return &SaveResult{User: user, Warnings: draft.Warnings}, nil
}

// Get loads a user with all child rows.
func (s *UserService) Get(ctx context.Context, name string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Roles").
		Preload("RoleProfiles").
		Preload("BlockedModules").
		Preload("SocialLogins").
		Preload("UserEmails").
		Take(&user, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List retrieves users matching the supplied filters with pagination.
// The built-in accounts stay out of listings unless explicitly asked for.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if !opts.Filters.IncludeReserved {
		query = query.Where("name NOT IN ?", []string{identity.Administrator, identity.Guest})
	}
	if opts.Filters.Enabled != nil {
		query = query.Where("enabled = ?", *opts.Filters.Enabled)
	}
	if userType := strings.TrimSpace(opts.Filters.UserType); userType != "" {
		query = query.Where("user_type = ?", userType)
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"LOWER(name) LIKE ? OR LOWER(full_name) LIKE ? OR LOWER(username) LIKE ?",
			pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Preload("Roles").
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

func (s *UserService) buildUser(ctx context.Context, input CreateUserInput) *models.User {
	user := &models.User{
		Email:             strings.TrimSpace(input.Email),
		FirstName:         strings.TrimSpace(input.FirstName),
		MiddleName:        strings.TrimSpace(input.MiddleName),
		LastName:          strings.TrimSpace(input.LastName),
		NewPassword:       input.Password,
		Username:          strings.TrimSpace(input.Username),
		UserType:          strings.TrimSpace(input.UserType),
		RoleProfileName:   strings.TrimSpace(input.RoleProfileName),
		ModuleProfileName: strings.TrimSpace(input.ModuleProfile),
		Language:          strings.TrimSpace(input.Language),
		TimeZone:          strings.TrimSpace(input.TimeZone),
		UserImage:         strings.TrimSpace(input.UserImage),
		DeskTheme:         strings.TrimSpace(input.DeskTheme),
		Phone:             strings.TrimSpace(input.Phone),
		MobileNo:          strings.TrimSpace(input.MobileNo),
		Gender:            strings.TrimSpace(input.Gender),
		BirthDate:         input.BirthDate,
		Location:          strings.TrimSpace(input.Location),
		Interest:          strings.TrimSpace(input.Interest),
		Bio:               strings.TrimSpace(input.Bio),
		Enabled:           true,
		SendWelcomeEmail:  true,
		LogoutAllSessions: true,
		ThreadNotify:      true,
	}

	if input.Enabled != nil {
		user.Enabled = *input.Enabled
	}
	if input.SendWelcomeEmail != nil {
		user.SendWelcomeEmail = *input.SendWelcomeEmail
	}
	if input.LogoutAllSessions != nil {
		user.LogoutAllSessions = *input.LogoutAllSessions
	}
	if user.DeskTheme == "" {
		user.DeskTheme = "Light"
	}

	for _, role := range normaliseNames(input.Roles) {
		user.Roles = append(user.Roles, models.UserRole{Role: role})
	}
	for _, profile := range normaliseNames(input.RoleProfiles) {
		user.RoleProfiles = append(user.RoleProfiles, models.UserRoleProfile{RoleProfile: profile})
	}

	owner := identity.Administrator
	if actor, ok := auditctx.FromContext(ctx); ok && actor.UserName != "" {
		owner = actor.UserName
	}
	user.Owner = owner
	user.ModifiedBy = owner

	return user
}

// claimChildRows stamps the parent name onto every child row so bulk
// writes never rely on association back-fill.
func claimChildRows(user *models.User) {
	for i := range user.Roles {
		user.Roles[i].UserName = user.Name
	}
	for i := range user.RoleProfiles {
		user.RoleProfiles[i].UserName = user.Name
	}
	for i := range user.BlockedModules {
		user.BlockedModules[i].UserName = user.Name
	}
	for i := range user.SocialLogins {
		user.SocialLogins[i].UserName = user.Name
	}
	for i := range user.UserEmails {
		user.UserEmails[i].UserName = user.Name
	}
}

// replaceChildRows rewrites the child tables to match the draft exactly,
// the same way the save treats child rows as part of the document.
func replaceChildRows(tx *gorm.DB, user *models.User) error {
	if err := tx.Where("user_name = ?", user.Name).Delete(&models.UserRole{}).Error; err != nil {
		return err
	}
	if len(user.Roles) > 0 {
		if err := tx.Create(&user.Roles).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("user_name = ?", user.Name).Delete(&models.UserRoleProfile{}).Error; err != nil {
		return err
	}
	if len(user.RoleProfiles) > 0 {
		if err := tx.Create(&user.RoleProfiles).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("user_name = ?", user.Name).Delete(&models.BlockedModule{}).Error; err != nil {
		return err
	}
	if len(user.BlockedModules) > 0 {
		if err := tx.Create(&user.BlockedModules).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("user_name = ?", user.Name).Delete(&models.SocialLogin{}).Error; err != nil {
		return err
	}
	if len(user.SocialLogins) > 0 {
		if err := tx.Create(&user.SocialLogins).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("user_name = ?", user.Name).Delete(&models.UserEmail{}).Error; err != nil {
		return err
	}
	if len(user.UserEmails) > 0 {
		if err := tx.Create(&user.UserEmails).Error; err != nil {
			return err
		}
	}

	return nil
}

// cloneUser deep-copies the row and its child slices so the pipeline can
// compare against the state read from the database.
func cloneUser(user *models.User) *models.User {
	if user == nil {
		return nil
	}

	cpy := *user
	cpy.Roles = append([]models.UserRole(nil), user.Roles...)
	cpy.RoleProfiles = append([]models.UserRoleProfile(nil), user.RoleProfiles...)
	cpy.BlockedModules = append([]models.BlockedModule(nil), user.BlockedModules...)
	cpy.SocialLogins = append([]models.SocialLogin(nil), user.SocialLogins...)
	cpy.UserEmails = append([]models.UserEmail(nil), user.UserEmails...)
	return &cpy
}

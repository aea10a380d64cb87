package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/crypto"
	apperrors "github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/logger"
)

// socialLoginProvider is the built-in provider every regular account gets
// a generated identifier for.
const socialLoginProvider = "warden"

const maxUserImageLength = 2000

// Step is a single named stage of the save pipeline.
type Step struct {
	Name string
	Run  func(ctx context.Context, d *Draft) error
}

// Pipeline validates and normalises a user draft through an ordered list
// of steps. The order is load-bearing: later steps rely on earlier ones,
// for example user-type derivation must follow role-profile expansion.
type Pipeline struct {
	db         *gorm.DB
	reconciler *RoleProfileReconciler
	policy     *PasswordPolicy

	defaultTimeZone string
	modules         []string

	steps []Step
	log   *zap.Logger
}

// PipelineOption customises pipeline behaviour.
type PipelineOption func(*Pipeline)

// WithDefaultTimeZone sets the timezone stamped onto users without one.
func WithDefaultTimeZone(tz string) PipelineOption {
	return func(p *Pipeline) {
		if tz = strings.TrimSpace(tz); tz != "" {
			p.defaultTimeZone = tz
		}
	}
}

// WithModules declares the installed desk modules, used when a custom
// user type restricts accounts to an allowed subset.
func WithModules(modules []string) PipelineOption {
	return func(p *Pipeline) {
		p.modules = normaliseNames(modules)
	}
}

// NewPipeline assembles the save pipeline.
func NewPipeline(db *gorm.DB, reconciler *RoleProfileReconciler, policy *PasswordPolicy, opts ...PipelineOption) (*Pipeline, error) {
	if db == nil {
		return nil, errors.New("user pipeline: db is required")
	}
	if reconciler == nil {
		return nil, errors.New("user pipeline: reconciler is required")
	}
	if policy == nil {
		return nil, errors.New("user pipeline: password policy is required")
	}

	p := &Pipeline{
		db:              db,
		reconciler:      reconciler,
		policy:          policy,
		defaultTimeZone: "UTC",
		log:             logger.WithModule("users.pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.steps = []Step{
		{Name: "capture-new-password", Run: p.captureNewPassword},
		{Name: "password-strength", Run: p.checkPasswordStrength},
		{Name: "canonical-email", Run: p.canonicalEmail},
		{Name: "migrate-role-profile", Run: p.migrateLegacyRoleProfile},
		{Name: "expand-role-profiles", Run: p.expandRoleProfiles},
		{Name: "warn-roleless", Run: p.warnRoleless},
		{Name: "derive-user-type", Run: p.deriveUserType},
		{Name: "derive-full-name", Run: p.deriveFullName},
		{Name: "enable-guard", Run: p.enableGuard},
		{Name: "dedupe-roles", Run: p.dedupeRoles},
		{Name: "dedupe-role-profiles", Run: p.dedupeRoleProfiles},
		{Name: "guest-roles", Run: p.guestRoles},
		{Name: "validate-username", Run: p.validateUsername},
		{Name: "drop-disabled-roles", Run: p.dropDisabledRoles},
		{Name: "validate-mailboxes", Run: p.validateMailboxes},
		{Name: "awaiting-password-registry", Run: p.markAwaitingPasswords},
		{Name: "apply-module-profile", Run: p.applyModuleProfile},
		{Name: "validate-user-image", Run: p.validateUserImage},
		{Name: "default-timezone", Run: p.defaultTimezone},
		{Name: "normalize-language", Run: p.normalizeLanguage},
		{Name: "ensure-social-login", Run: p.ensureSocialLogin},
	}

	return p, nil
}

// Steps exposes the ordered step list.
func (p *Pipeline) Steps() []Step {
	return p.steps
}

// Run executes every step in order, stopping at the first failure.
func (p *Pipeline) Run(ctx context.Context, d *Draft) error {
	ctx = ensureContext(ctx)

	if d == nil || d.User == nil {
		return errors.New("user pipeline: draft user is required")
	}

	for _, step := range p.steps {
		if err := step.Run(ctx, d); err != nil {
			p.log.Debug("pipeline step rejected draft",
				zap.String("step", step.Name),
				zap.String("user", d.User.Name),
				zap.Error(err))
			return err
		}
	}
	return nil
}

// captureNewPassword moves the pending plaintext off the row so it can
// never be persisted by accident.
func (p *Pipeline) captureNewPassword(ctx context.Context, d *Draft) error {
	d.NewPassword = d.User.NewPassword
	d.User.NewPassword = ""
	return nil
}

func (p *Pipeline) checkPasswordStrength(ctx context.Context, d *Draft) error {
	if d.SkipPasswordPolicy || d.NewPassword == "" {
		return nil
	}
	return p.policy.Check(ctx, d.NewPassword, UserInputs(d.User))
}

// canonicalEmail keeps name and email locked together for regular
// accounts: the name is the lowercased address, and the address always
// mirrors the name. Renames go through the rename flow, never a save.
func (p *Pipeline) canonicalEmail(ctx context.Context, d *Draft) error {
	if identity.IsReserved(d.User.Name) {
		return nil
	}

	if d.IsNew && d.User.Name == "" {
		email, ok := normaliseEmail(d.User.Email)
		if !ok {
			return apperrors.NewBadRequest(fmt.Sprintf("%s is not a valid email address", strings.TrimSpace(d.User.Email)))
		}
		d.User.Name = email
	}

	if _, ok := normaliseEmail(d.User.Name); !ok {
		return apperrors.NewBadRequest(fmt.Sprintf("%s is not a valid email address", d.User.Name))
	}

	d.User.Email = d.User.Name
	return nil
}

func (p *Pipeline) migrateLegacyRoleProfile(ctx context.Context, d *Draft) error {
	p.reconciler.MigrateLegacyField(d)
	return nil
}

func (p *Pipeline) expandRoleProfiles(ctx context.Context, d *Draft) error {
	return p.reconciler.Reconcile(ctx, d)
}

// warnRoleless flags freshly created system users with no roles. It runs
// before user-type derivation and therefore sees the caller's intent.
func (p *Pipeline) warnRoleless(ctx context.Context, d *Draft) error {
	if !d.IsNew || d.User.UserType != models.UserTypeSystem || len(d.User.Roles) > 0 {
		return nil
	}
	d.Warn(fmt.Sprintf("Newly created user %s has no roles enabled.", d.User.Name))
	return nil
}

// deriveUserType fixes the type for built-in accounts, applies custom
// type constraints, and otherwise derives the type from desk access.
func (p *Pipeline) deriveUserType(ctx context.Context, d *Draft) error {
	custom, err := p.loadCustomUserType(ctx, d.User.UserType)
	if err != nil {
		return err
	}

	if custom != nil {
		switch identity.Classify(d.User.Name) {
		case identity.KindAdministrator:
			d.User.UserType = models.UserTypeSystem
			return nil
		case identity.KindGuest:
			d.User.UserType = models.UserTypeWebsite
			return nil
		}
		return p.applyCustomUserType(ctx, d, custom)
	}

	deskAccess, err := p.hasDeskAccess(ctx, d.User.RoleNames())
	if err != nil {
		return err
	}
	if deskAccess {
		d.User.UserType = models.UserTypeSystem
	} else {
		d.User.UserType = models.UserTypeWebsite
	}
	return nil
}

// loadCustomUserType returns the catalogue row when the named type exists
// and is not one of the two standard types.
func (p *Pipeline) loadCustomUserType(ctx context.Context, name string) (*models.UserType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var userType models.UserType
	err := p.db.WithContext(ctx).Take(&userType, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user pipeline: load user type: %w", err)
	}
	if userType.IsStandard {
		return nil, nil
	}
	return &userType, nil
}

func (p *Pipeline) applyCustomUserType(ctx context.Context, d *Draft, userType *models.UserType) error {
	if userType.Role != "" {
		d.SetRoles(nil)

		linked, err := p.userLinkedWithPermission(ctx, d.User.Name, userType)
		if err != nil {
			return err
		}
		if linked {
			d.AppendRole(userType.Role)
			d.Warn(fmt.Sprintf("Role has been set as per the user type %s", userType.Name))
		}
	}

	return p.applyAllowedModules(d, userType)
}

// userLinkedWithPermission reports whether the account is linked to a
// record of the type the custom user type scopes permissions on.
func (p *Pipeline) userLinkedWithPermission(ctx context.Context, name string, userType *models.UserType) (bool, error) {
	if userType.ApplyUserPermissionOn == "" {
		return false, nil
	}

	var count int64
	err := p.db.WithContext(ctx).Model(&models.UserPermission{}).
		Where("user_name = ? AND allow_type = ?", name, userType.ApplyUserPermissionOn).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("user pipeline: check user type linkage: %w", err)
	}
	return count > 0, nil
}

// applyAllowedModules blocks every installed module outside the custom
// type's allowed set.
func (p *Pipeline) applyAllowedModules(d *Draft, userType *models.UserType) error {
	if len(p.modules) == 0 {
		return nil
	}

	var allowed []string
	if len(userType.AllowedModules) > 0 {
		if err := json.Unmarshal(userType.AllowedModules, &allowed); err != nil {
			return fmt.Errorf("user pipeline: decode allowed modules: %w", err)
		}
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, module := range allowed {
		allowedSet[module] = struct{}{}
	}

	blocked := make([]models.BlockedModule, 0)
	for _, module := range p.modules {
		if _, ok := allowedSet[module]; ok {
			continue
		}
		blocked = append(blocked, models.BlockedModule{UserName: d.User.Name, Module: module})
	}
	d.User.BlockedModules = blocked
	return nil
}

func (p *Pipeline) hasDeskAccess(ctx context.Context, roles []string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	var count int64
	err := p.db.WithContext(ctx).Model(&models.Role{}).
		Where("name IN ? AND desk_access = ?", roles, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("user pipeline: count desk roles: %w", err)
	}
	return count > 0, nil
}

// deriveFullName joins the first and last names. The middle name stays
// out of the computed value.
func (p *Pipeline) deriveFullName(ctx context.Context, d *Draft) error {
	parts := make([]string, 0, 2)
	for _, part := range []string{d.User.FirstName, d.User.LastName} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	d.User.FullName = strings.Join(parts, " ")
	return nil
}

// enableGuard protects built-in accounts from being disabled and records
// the side effects of a disable: session logout and muted mail flags.
func (p *Pipeline) enableGuard(ctx context.Context, d *Draft) error {
	if !d.User.Enabled && identity.IsReserved(d.User.Name) {
		return apperrors.ErrProtectedUser.WithMessage(fmt.Sprintf("User %s cannot be disabled", d.User.Name))
	}

	if !d.User.Enabled {
		d.LogoutSessions = true
		d.User.ThreadNotify = false
		d.User.SendMeACopy = false
		d.User.AllowInMentions = false
	}

	enabled := d.User.Enabled
	d.ToggleNotifications = &enabled
	return nil
}

func (p *Pipeline) dedupeRoles(ctx context.Context, d *Draft) error {
	seen := make(map[string]struct{}, len(d.User.Roles))
	d.KeepRoles(func(role string) bool {
		if role == "" {
			return false
		}
		if _, ok := seen[role]; ok {
			return false
		}
		seen[role] = struct{}{}
		return true
	})
	return nil
}

func (p *Pipeline) dedupeRoleProfiles(ctx context.Context, d *Draft) error {
	seen := make(map[string]struct{}, len(d.User.RoleProfiles))
	filtered := d.User.RoleProfiles[:0]
	for _, row := range d.User.RoleProfiles {
		if _, ok := seen[row.RoleProfile]; ok {
			continue
		}
		seen[row.RoleProfile] = struct{}{}
		filtered = append(filtered, row)
	}
	d.User.RoleProfiles = filtered
	return nil
}

// guestRoles strips the anonymous account down to the Guest role alone.
func (p *Pipeline) guestRoles(ctx context.Context, d *Draft) error {
	if identity.Classify(d.User.Name) != identity.KindGuest {
		return nil
	}
	d.KeepRoles(func(role string) bool {
		return role == models.RoleGuest
	})
	return nil
}

// validateUsername defaults a fresh account's username from the first
// name, then clears it when taken, suggesting alternatives for desk users.
func (p *Pipeline) validateUsername(ctx context.Context, d *Draft) error {
	if d.User.Username == "" && d.IsNew && d.User.FirstName != "" {
		d.User.Username = scrubUsername(d.User.FirstName)
	}

	if d.User.Username == "" {
		return nil
	}

	d.User.Username = strings.Trim(d.User.Username, " @")
	if d.User.Username == "" {
		return nil
	}

	taken, err := p.usernameExists(ctx, d.User.Username, d.User.Name)
	if err != nil {
		return err
	}
	if !taken {
		return nil
	}

	if d.User.UserType == models.UserTypeSystem {
		d.Warn(fmt.Sprintf("Username %s already exists", d.User.Username))
		if suggestion, err := p.suggestUsername(ctx, d); err != nil {
			return err
		} else if suggestion != "" {
			d.Warn(fmt.Sprintf("Suggested Username: %s", suggestion))
		}
	}

	d.User.Username = ""
	return nil
}

func (p *Pipeline) usernameExists(ctx context.Context, username, exclude string) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? AND name != ?", username, exclude).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("user pipeline: check username: %w", err)
	}
	return count > 0, nil
}

func (p *Pipeline) suggestUsername(ctx context.Context, d *Draft) (string, error) {
	candidates := []string{
		scrubUsername(d.User.FirstName),
		scrubUsername(strings.TrimSpace(d.User.FirstName + " " + d.User.LastName)),
	}
	for _, candidate := range candidates {
		if candidate == "" || candidate == d.User.Username {
			continue
		}
		taken, err := p.usernameExists(ctx, candidate, d.User.Name)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", nil
}

func (p *Pipeline) dropDisabledRoles(ctx context.Context, d *Draft) error {
	if len(d.User.Roles) == 0 {
		return nil
	}

	var disabled []string
	err := p.db.WithContext(ctx).Model(&models.Role{}).
		Where("disabled = ?", true).
		Pluck("name", &disabled).Error
	if err != nil {
		return fmt.Errorf("user pipeline: load disabled roles: %w", err)
	}
	if len(disabled) == 0 {
		return nil
	}

	disabledSet := make(map[string]struct{}, len(disabled))
	for _, role := range disabled {
		disabledSet[role] = struct{}{}
	}
	d.KeepRoles(func(role string) bool {
		_, ok := disabledSet[role]
		return !ok
	})
	return nil
}

// validateMailboxes rejects the same email account linked twice.
func (p *Pipeline) validateMailboxes(ctx context.Context, d *Draft) error {
	seen := make(map[string]struct{}, len(d.User.UserEmails))
	for _, row := range d.User.UserEmails {
		if _, ok := seen[row.EmailAccount]; ok {
			return apperrors.NewBadRequest("Email Account added multiple times")
		}
		seen[row.EmailAccount] = struct{}{}
	}
	return nil
}

func (p *Pipeline) markAwaitingPasswords(ctx context.Context, d *Draft) error {
	if len(d.User.UserEmails) > 0 {
		d.RefreshAwaitingPasswords = true
	}
	return nil
}

// applyModuleProfile replaces the user's blocked modules with the linked
// module profile's list.
func (p *Pipeline) applyModuleProfile(ctx context.Context, d *Draft) error {
	profileName := strings.TrimSpace(d.User.ModuleProfileName)
	if profileName == "" {
		return nil
	}

	var profile models.ModuleProfile
	err := p.db.WithContext(ctx).
		Preload("BlockedModules").
		Take(&profile, "name = ?", profileName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewBadRequest(fmt.Sprintf("Module profile %s does not exist", profileName))
	}
	if err != nil {
		return fmt.Errorf("user pipeline: load module profile: %w", err)
	}

	blocked := make([]models.BlockedModule, 0, len(profile.BlockedModules))
	for _, row := range profile.BlockedModules {
		blocked = append(blocked, models.BlockedModule{UserName: d.User.Name, Module: row.Module})
	}
	d.User.BlockedModules = blocked
	return nil
}

func (p *Pipeline) validateUserImage(ctx context.Context, d *Draft) error {
	if len(d.User.UserImage) > maxUserImageLength {
		return apperrors.NewBadRequest("Not a valid User Image.")
	}
	return nil
}

func (p *Pipeline) defaultTimezone(ctx context.Context, d *Draft) error {
	if strings.TrimSpace(d.User.TimeZone) == "" {
		d.User.TimeZone = p.defaultTimeZone
	}
	return nil
}

// normalizeLanguage clears the placeholder some clients submit while
// their locale list is still loading.
func (p *Pipeline) normalizeLanguage(ctx context.Context, d *Draft) error {
	if d.User.Language == "Loading..." {
		d.User.Language = ""
	}
	return nil
}

// ensureSocialLogin guarantees every regular account carries a generated
// identifier for the built-in provider.
func (p *Pipeline) ensureSocialLogin(ctx context.Context, d *Draft) error {
	if identity.IsReserved(d.User.Name) {
		return nil
	}

	for _, row := range d.User.SocialLogins {
		if row.Provider == socialLoginProvider && row.ProviderID != "" {
			return nil
		}
	}

	providerID, err := crypto.GenerateHash(39)
	if err != nil {
		return fmt.Errorf("user pipeline: generate social login id: %w", err)
	}
	d.User.SocialLogins = append(d.User.SocialLogins, models.SocialLogin{
		UserName:   d.User.Name,
		Provider:   socialLoginProvider,
		ProviderID: providerID,
	})
	return nil
}

// scrubUsername lowercases and squashes separators the way usernames are
// generated from display names.
func scrubUsername(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-':
			return '_'
		}
		return r
	}, value)
	return strings.Trim(value, " @")
}

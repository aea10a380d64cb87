package models

import (
	"strings"
	"time"
)

// User is keyed by its Name, which for regular accounts is the lowercased
// email address. The reserved Administrator and Guest accounts keep their
// literal names instead.
type User struct {
	Name  string `gorm:"primaryKey;size:140" json:"name"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`

	Enabled bool `gorm:"index" json:"enabled"`

	FirstName  string `gorm:"not null" json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
	FullName   string `gorm:"index" json:"full_name"`
	Username   string `gorm:"index" json:"username"`

	// UserType mirrors desk access: System User when any assigned role
	// carries desk access, Website User otherwise.
	UserType  string `gorm:"default:'Website User';index" json:"user_type"`
	Language  string `json:"language"`
	TimeZone  string `json:"time_zone"`
	UserImage string `json:"user_image"`
	DeskTheme string `gorm:"default:'Light'" json:"desk_theme"`

	// RoleProfileName is the legacy single-profile field. It is migrated
	// into RoleProfiles on save and kept only for backwards compatibility.
	RoleProfileName   string `json:"role_profile_name"`
	ModuleProfileName string `json:"module_profile"`

	// NewPassword carries a pending plaintext password through a single
	// save. It is hashed and cleared before the row is written.
	NewPassword       string `gorm:"-" json:"new_password,omitempty"`
	Password          string `gorm:"column:password" json:"-"`
	LogoutAllSessions bool   `json:"logout_all_sessions"`
	SendWelcomeEmail  bool   `json:"send_welcome_email"`

	ResetPasswordKey            string     `gorm:"index" json:"-"`
	LastResetPasswordKeyAt      *time.Time `json:"-"`
	LastPasswordResetDate       *time.Time `json:"last_password_reset_date"`
	RedirectURL                 string     `json:"redirect_url,omitempty"`
	LoginAfter                  int        `json:"login_after"`
	LoginBefore                 int        `json:"login_before"`
	RestrictIP                  string     `json:"restrict_ip"`
	BypassRestrictIPCheckIf2FA  bool       `json:"bypass_restrict_ip_check_if_2fa_enabled"`
	SimultaneousSessions        int        `gorm:"default:1" json:"simultaneous_sessions"`
	OnboardingStatus            string     `gorm:"default:'{}'" json:"onboarding_status"`
	AllowInMentions             bool       `gorm:"default:false" json:"allow_in_mentions"`
	MuteSounds                  bool       `json:"mute_sounds"`
	SendMeACopy                 bool       `json:"send_me_a_copy"`
	ThreadNotify                bool       `json:"thread_notify"`
	UnsubscribedFromDigest      bool       `json:"unsubscribed"`
	DocumentFollowNotifyByEmail bool       `json:"document_follow_notify"`

	APIKey    string `gorm:"index" json:"api_key,omitempty"`
	APISecret string `json:"-"`

	Phone     string     `json:"phone"`
	MobileNo  string     `gorm:"index" json:"mobile_no"`
	Gender    string     `json:"gender"`
	BirthDate *time.Time `json:"birth_date"`
	Location  string     `json:"location"`
	Interest  string     `json:"interest"`
	Bio       string     `json:"bio"`

	// University and Major are captured once during self sign-up and are
	// not overwritten by later profile edits.
	University string `json:"university"`
	Major      string `json:"major"`

	LastLoginAt  *time.Time `json:"last_login_at"`
	LastActiveAt *time.Time `json:"last_active_at"`
	LastIP       string     `json:"last_ip"`

	Roles          []UserRole        `gorm:"foreignKey:UserName;references:Name;constraint:OnDelete:CASCADE" json:"roles,omitempty"`
	RoleProfiles   []UserRoleProfile `gorm:"foreignKey:UserName;references:Name;constraint:OnDelete:CASCADE" json:"role_profiles,omitempty"`
	BlockedModules []BlockedModule   `gorm:"foreignKey:UserName;references:Name;constraint:OnDelete:CASCADE" json:"block_modules,omitempty"`
	SocialLogins   []SocialLogin     `gorm:"foreignKey:UserName;references:Name;constraint:OnDelete:CASCADE" json:"social_logins,omitempty"`
	UserEmails     []UserEmail       `gorm:"foreignKey:UserName;references:Name;constraint:OnDelete:CASCADE" json:"user_emails,omitempty"`

	Owner      string    `gorm:"index" json:"owner"`
	ModifiedBy string    `gorm:"index" json:"modified_by"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RoleNames returns the assigned role names in declaration order.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, row := range u.Roles {
		names = append(names, row.Role)
	}
	return names
}

// HasRole reports whether the given role is assigned, case-sensitively.
func (u *User) HasRole(role string) bool {
	for _, row := range u.Roles {
		if row.Role == role {
			return true
		}
	}
	return false
}

// RoleProfileNames returns the assigned role profile names in order.
func (u *User) RoleProfileNames() []string {
	names := make([]string, 0, len(u.RoleProfiles))
	for _, row := range u.RoleProfiles {
		names = append(names, row.RoleProfile)
	}
	return names
}

// IsSystemUser reports whether the persisted user type grants desk access.
func (u *User) IsSystemUser() bool {
	return u.UserType == UserTypeSystem
}

// DisplayName prefers the computed full name and falls back to the email
// local part so notifications never render an empty sender.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return u.Name
}

// Built-in user types. Custom types may be defined through UserType rows.
const (
	UserTypeSystem  = "System User"
	UserTypeWebsite = "Website User"
)

// UserRole links a user to a role from the role catalogue.
type UserRole struct {
	BaseModel

	UserName string `gorm:"size:140;not null;index:idx_user_roles_user" json:"-"`
	Role     string `gorm:"size:140;not null;index" json:"role"`
}

// UserRoleProfile links a user to a role profile. The union of the linked
// profiles' roles becomes the user's role set on save.
type UserRoleProfile struct {
	BaseModel

	UserName    string `gorm:"size:140;not null;index" json:"-"`
	RoleProfile string `gorm:"size:140;not null" json:"role_profile"`
}

// BlockedModule hides a desk module from the user.
type BlockedModule struct {
	BaseModel

	UserName string `gorm:"size:140;not null;index" json:"-"`
	Module   string `gorm:"size:140;not null" json:"module"`
}

// SocialLogin stores a linked identity for an external auth provider.
type SocialLogin struct {
	BaseModel

	UserName   string `gorm:"size:140;not null;index" json:"-"`
	Provider   string `gorm:"size:140;not null" json:"provider"`
	Username   string `gorm:"size:140" json:"username"`
	ProviderID string `gorm:"size:255" json:"userid"`
}

// UserEmail is an inbound email account attached to the user.
type UserEmail struct {
	BaseModel

	UserName         string `gorm:"size:140;not null;index" json:"-"`
	EmailAccount     string `gorm:"size:140;not null" json:"email_account"`
	EmailID          string `gorm:"size:255" json:"email_id"`
	AwaitingPassword bool   `json:"awaiting_password"`
	UsedOAuth        bool   `gorm:"column:used_oauth" json:"used_oauth"`
	EnableOutgoing   bool   `json:"enable_outgoing"`
}

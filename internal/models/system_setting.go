package models

import "time"

// SystemSetting persists installation-wide values that should survive restarts.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Setting keys read by the account services.
const (
	SettingResetKeyExpirySeconds       = "reset_password_link_expiry_duration"
	SettingLogoutOnPasswordReset       = "logout_on_password_reset"
	SettingEnablePasswordPolicy        = "enable_password_policy"
	SettingMinimumPasswordScore        = "minimum_password_score"
	SettingAllowLoginUsingUserName     = "allow_login_using_user_name"
	SettingAllowLoginUsingMobileNumber = "allow_login_using_mobile_number"
	SettingDisableSignup               = "disable_signup"
	SettingSignupRateLimit             = "signup_rate_limit"
	SettingDefaultRoleProfile          = "default_role_profile"
	SettingLoginWithEmailLink          = "login_with_email_link"
)

package models

import "time"

// OAuthAuthorizationCode is a short-lived grant issued during the OAuth
// authorization flow. Codes belonging to a deleted user are purged.
type OAuthAuthorizationCode struct {
	BaseModel

	UserName          string    `gorm:"size:140;not null;index" json:"user"`
	ClientID          string    `gorm:"size:140;not null;index" json:"client"`
	Code              string    `gorm:"uniqueIndex;not null" json:"-"`
	Scopes            string    `gorm:"type:text" json:"scopes"`
	RedirectURI       string    `gorm:"type:text" json:"redirect_uri_bound_to_authorization_code"`
	CodeChallenge     string    `gorm:"size:255" json:"code_challenge"`
	ValidUntil        time.Time `gorm:"index" json:"validity"`
	AuthorizationTime time.Time `json:"authorization_time"`
}

// TokenCache stores issued bearer tokens per user and client so they can
// be revoked together.
type TokenCache struct {
	BaseModel

	UserName     string    `gorm:"size:140;not null;index" json:"user"`
	ClientID     string    `gorm:"size:140;not null;index" json:"client"`
	AccessToken  string    `gorm:"uniqueIndex" json:"-"`
	RefreshToken string    `gorm:"index" json:"-"`
	ExpiresAt    time.Time `gorm:"index" json:"expires_at"`
}

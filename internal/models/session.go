package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one refresh-token grant. Access tokens are stateless;
// revoking a session only cuts off its refresh token.
type Session struct {
	ID           string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserName     string     `gorm:"size:140;not null;index" json:"user"`
	User         *User      `gorm:"foreignKey:UserName;references:Name" json:"-"`
	RefreshToken string     `gorm:"uniqueIndex;not null" json:"-"`
	IPAddress    string     `json:"ip_address"`
	UserAgent    string     `json:"user_agent"`
	DeviceName   string     `json:"device_name"`
	ExpiresAt    time.Time  `gorm:"index" json:"expires_at"`
	LastUsedAt   time.Time  `json:"last_used_at"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at"`

	// ImpersonatedBy holds the administrator who opened this session on
	// behalf of UserName, empty for ordinary logins.
	ImpersonatedBy string `gorm:"size:140" json:"impersonated_by,omitempty"`
}

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

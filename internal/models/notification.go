package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification represents an in-app notification for a user.
type Notification struct {
	BaseModel

	UserName string         `gorm:"size:140;index" json:"for_user"`
	FromUser string         `gorm:"size:140" json:"from_user"`
	Type     string         `gorm:"type:varchar(64);not null" json:"type"`
	Subject  string         `gorm:"type:varchar(255);not null" json:"subject"`
	Content  string         `gorm:"type:text" json:"content"`
	Metadata datatypes.JSON `json:"metadata"`

	DocumentType string `gorm:"size:140;index" json:"document_type"`
	DocumentName string `gorm:"size:140;index" json:"document_name"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}

// Notification types recorded by the account services.
const (
	NotificationTypeAlert       = "alert"
	NotificationTypeImpersonate = "impersonation"
	NotificationTypeShare       = "share"
)

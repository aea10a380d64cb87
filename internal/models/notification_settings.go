package models

import "time"

// NotificationSettings stores per-user delivery preferences. The row is
// keyed by the user name and created lazily on first save.
type NotificationSettings struct {
	UserName string `gorm:"primaryKey;size:140" json:"user"`

	Enabled           bool `json:"enabled"`
	NotifyByEmail     bool `json:"notify_by_email"`
	NotifyAssignment  bool `json:"notify_assignment"`
	NotifyMentions    bool `json:"notify_mentions"`
	NotifyShare       bool `json:"notify_share"`
	NotifyEnergyPoint bool `gorm:"default:false" json:"notify_energy_point"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

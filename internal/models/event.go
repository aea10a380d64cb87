package models

import "time"

// Event is a calendar entry. Private events belong to their owner alone
// and are removed with the account.
type Event struct {
	BaseModel

	Subject   string    `gorm:"type:varchar(255);not null" json:"subject"`
	EventType string    `gorm:"size:32;default:'Private';index" json:"event_type"`
	StartsOn  time.Time `json:"starts_on"`
	EndsOn    time.Time `json:"ends_on"`
	AllDay    bool      `json:"all_day"`

	Owner      string `gorm:"size:140;index" json:"owner"`
	ModifiedBy string `gorm:"size:140;index" json:"modified_by"`
}

// Event visibility values.
const (
	EventTypePrivate = "Private"
	EventTypePublic  = "Public"
)

package models

import "time"

// ModuleProfile is a reusable set of blocked desk modules. Applying a
// profile to a user replaces the user's own blocked module rows.
type ModuleProfile struct {
	Name string `gorm:"primaryKey;size:140" json:"name"`

	BlockedModules []ModuleProfileBlock `gorm:"foreignKey:ModuleProfileName;references:Name;constraint:OnDelete:CASCADE" json:"block_modules,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModuleProfileBlock is a single blocked module inside a module profile.
type ModuleProfileBlock struct {
	BaseModel

	ModuleProfileName string `gorm:"size:140;not null;index" json:"-"`
	Module            string `gorm:"size:140;not null" json:"module"`
}

package models

// DefaultValue is a key/value default scoped to a parent, usually a user
// name. User rows keep session defaults such as the last selected filters.
type DefaultValue struct {
	BaseModel

	Parent     string `gorm:"size:140;not null;index:idx_defaults_parent" json:"parent"`
	ParentType string `gorm:"size:140;default:'User'" json:"parenttype"`
	DefKey     string `gorm:"size:140;not null;index" json:"defkey"`
	DefValue   string `gorm:"type:text" json:"defvalue"`
}

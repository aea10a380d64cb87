package models

import "gorm.io/datatypes"

// Note is a shared notice shown to users until they mark it seen. SeenBy
// holds the names of users who already dismissed it.
type Note struct {
	BaseModel

	Title   string `gorm:"type:varchar(255);not null" json:"title"`
	Content string `gorm:"type:text" json:"content"`
	Public  bool   `gorm:"default:false" json:"public"`

	NotifyOnLogin bool           `gorm:"default:false" json:"notify_on_login"`
	SeenBy        datatypes.JSON `json:"seen_by"`

	Owner      string `gorm:"size:140;index" json:"owner"`
	ModifiedBy string `gorm:"size:140;index" json:"modified_by"`
}

// ListFilter is a saved list view filter, optionally private to one user.
type ListFilter struct {
	BaseModel

	FilterName    string  `gorm:"size:140;not null" json:"filter_name"`
	ReferenceType string  `gorm:"size:140;not null;index" json:"reference_doctype"`
	ForUser       *string `gorm:"size:140;index" json:"for_user"`
	FilterJSON    string  `gorm:"type:text" json:"filters"`

	Owner      string `gorm:"size:140;index" json:"owner"`
	ModifiedBy string `gorm:"size:140;index" json:"modified_by"`
}

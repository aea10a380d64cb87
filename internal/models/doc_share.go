package models

// DocShare grants a user access to a single document of any type.
type DocShare struct {
	BaseModel

	UserName     string `gorm:"size:140;not null;index" json:"user"`
	SharedBy     string `gorm:"size:140" json:"shared_by"`
	DocumentType string `gorm:"size:140;not null;index" json:"share_doctype"`
	DocumentName string `gorm:"size:140;not null;index" json:"share_name"`

	Read   bool `json:"read"`
	Write  bool `gorm:"default:false" json:"write"`
	Share  bool `gorm:"default:false" json:"share"`
	Notify bool `gorm:"default:false" json:"notify"`

	Owner      string `gorm:"size:140;index" json:"owner"`
	ModifiedBy string `gorm:"size:140;index" json:"modified_by"`
}

package models

// UserPermission restricts a user to particular records of a document type.
type UserPermission struct {
	BaseModel

	UserName     string `gorm:"size:140;not null;index" json:"user"`
	AllowType    string `gorm:"size:140;not null" json:"allow"`
	ForValue     string `gorm:"size:140;not null" json:"for_value"`
	ApplyToAll   bool   `json:"apply_to_all_doctypes"`
	ApplicableTo string `gorm:"size:140" json:"applicable_for"`

	Owner      string `gorm:"size:140;index" json:"owner"`
	ModifiedBy string `gorm:"size:140;index" json:"modified_by"`
}

package models

// Communication records an email or message linked to a document. Rows
// whose reference is a deleted user are removed with the account.
type Communication struct {
	BaseModel

	Subject           string `gorm:"type:varchar(255)" json:"subject"`
	Content           string `gorm:"type:text" json:"content"`
	CommunicationType string `gorm:"size:64;default:'Communication'" json:"communication_type"`
	Sender            string `gorm:"size:255;index" json:"sender"`
	Recipients        string `gorm:"type:text" json:"recipients"`

	ReferenceType string `gorm:"size:140;index" json:"reference_doctype"`
	ReferenceName string `gorm:"size:140;index" json:"reference_name"`

	Owner      string `gorm:"size:140;index" json:"owner"`
	ModifiedBy string `gorm:"size:140;index" json:"modified_by"`
}

package models

// Contact is an address-book entry that may be linked to a user account.
// Deleting the account clears the link but keeps the contact.
type Contact struct {
	BaseModel

	FirstName string  `gorm:"size:140" json:"first_name"`
	LastName  string  `gorm:"size:140" json:"last_name"`
	FullName  string  `gorm:"size:255;index" json:"full_name"`
	Gender    string  `gorm:"size:32" json:"gender"`
	EmailID   string  `gorm:"size:255;index" json:"email_id"`
	Phone     string  `gorm:"size:32" json:"phone"`
	MobileNo  string  `gorm:"size:32" json:"mobile_no"`
	UserName  *string `gorm:"size:140;index" json:"user"`

	Owner      string `gorm:"size:140;index" json:"owner"`
	ModifiedBy string `gorm:"size:140;index" json:"modified_by"`
}

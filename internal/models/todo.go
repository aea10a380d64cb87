package models

import "time"

// Todo is a task allocated to a user, optionally assigned by another.
type Todo struct {
	BaseModel

	AllocatedTo string     `gorm:"size:140;not null;index" json:"allocated_to"`
	AssignedBy  *string    `gorm:"size:140;index" json:"assigned_by"`
	Description string     `gorm:"type:text" json:"description"`
	Status      string     `gorm:"size:32;default:'Open'" json:"status"`
	Priority    string     `gorm:"size:32;default:'Medium'" json:"priority"`
	DueDate     *time.Time `json:"due_date"`

	ReferenceType string `gorm:"size:140" json:"reference_type"`
	ReferenceName string `gorm:"size:140" json:"reference_name"`

	Owner      string `gorm:"size:140;index" json:"owner"`
	ModifiedBy string `gorm:"size:140;index" json:"modified_by"`
}

package models

import "time"

// RoleProfile is a reusable named set of roles. Users linked to one or
// more profiles receive exactly the union of the profiles' roles.
type RoleProfile struct {
	Name string `gorm:"primaryKey;size:140" json:"name"`

	Roles []RoleProfileRole `gorm:"foreignKey:RoleProfileName;references:Name;constraint:OnDelete:CASCADE" json:"roles,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleProfileRole is a single role inside a role profile.
type RoleProfileRole struct {
	BaseModel

	RoleProfileName string `gorm:"size:140;not null;index" json:"-"`
	Role            string `gorm:"size:140;not null" json:"role"`
}

// RoleNames returns the profile's role names in declaration order.
func (p *RoleProfile) RoleNames() []string {
	names := make([]string, 0, len(p.Roles))
	for _, row := range p.Roles {
		names = append(names, row.Role)
	}
	return names
}

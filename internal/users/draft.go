package users

import (
	"strings"

	"github.com/wardenhq/warden/internal/models"
)

// Draft is the mutable snapshot a save pipeline runs against. Steps read
// and rewrite the embedded user row and record requested side effects;
// nothing touches the database for writes until the service persists the
// finished draft in one transaction.
type Draft struct {
	User  *models.User
	Prior *models.User
	IsNew bool

	// NewPassword holds the plaintext captured off the user row by the
	// first step. Empty when the save does not change the password.
	NewPassword string

	// SkipPasswordPolicy bypasses strength checks for trusted callers
	// such as bootstrap seeding and administrative resets.
	SkipPasswordPolicy bool

	// Warnings collects non-fatal messages surfaced to the caller.
	Warnings []string

	// LogoutSessions asks the service to terminate the user's sessions
	// after the save commits.
	LogoutSessions bool

	// ToggleNotifications mirrors the enabled flag into the user's
	// notification settings row after the save commits.
	ToggleNotifications *bool

	// RefreshAwaitingPasswords asks the service to rebuild the global
	// registry of mailbox accounts still awaiting a password.
	RefreshAwaitingPasswords bool
}

// Warn records a non-fatal message.
func (d *Draft) Warn(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	d.Warnings = append(d.Warnings, message)
}

// HasRole reports whether the draft row currently carries the role.
func (d *Draft) HasRole(role string) bool {
	return d.User.HasRole(role)
}

// AppendRole adds a role row unless it is already present.
func (d *Draft) AppendRole(role string) {
	role = strings.TrimSpace(role)
	if role == "" || d.HasRole(role) {
		return
	}
	d.User.Roles = append(d.User.Roles, models.UserRole{UserName: d.User.Name, Role: role})
}

// SetRoles replaces the role rows with the supplied names in order.
func (d *Draft) SetRoles(roles []string) {
	rows := make([]models.UserRole, 0, len(roles))
	for _, role := range roles {
		rows = append(rows, models.UserRole{UserName: d.User.Name, Role: role})
	}
	d.User.Roles = rows
}

// KeepRoles drops every role row the predicate rejects, preserving order.
func (d *Draft) KeepRoles(keep func(role string) bool) {
	filtered := d.User.Roles[:0]
	for _, row := range d.User.Roles {
		if keep(row.Role) {
			filtered = append(filtered, row)
		}
	}
	d.User.Roles = filtered
}

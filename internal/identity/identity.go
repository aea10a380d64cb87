// Package identity classifies account names into the reserved built-in
// identities and regular accounts. The classification gates protection
// rules: reserved accounts cannot be renamed, deleted, or disabled.
package identity

// Reserved names of the two built-in accounts.
const (
	Administrator = "Administrator"
	Guest         = "Guest"
)

// Kind is the classification of an account name.
type Kind int

const (
	// Regular is any ordinary, email-keyed account.
	Regular Kind = iota
	// KindAdministrator is the built-in superuser account.
	KindAdministrator
	// KindGuest is the built-in anonymous account.
	KindGuest
)

// Classify maps an account name to its identity kind. Matching is exact:
// reserved names are stored verbatim, never lowercased.
func Classify(name string) Kind {
	switch name {
	case Administrator:
		return KindAdministrator
	case Guest:
		return KindGuest
	default:
		return Regular
	}
}

// IsReserved reports whether the name belongs to a built-in account.
func IsReserved(name string) bool {
	return Classify(name) != Regular
}

func (k Kind) String() string {
	switch k {
	case KindAdministrator:
		return Administrator
	case KindGuest:
		return Guest
	default:
		return "Regular"
	}
}

package directory

// Role is the privilege level attached to a known identity. RoleNone means
// the identity is known but carries no privileges; authorization checks must
// treat it as absent.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleApprover Role = "approver"
	RoleNone     Role = "none"
)

// Actor is a privileged human identity. The numeric identity is stable; the
// display name is refreshed on every interaction.
type Actor struct {
	ID          int64
	DisplayName string
	Role        Role
}

// CanCreateRequests reports whether the actor may create replacement requests.
func (a Actor) CanCreateRequests() bool {
	return a.Role == RoleOwner || a.Role == RoleApprover
}

// Employee is a directory record distinct from Actor: it carries the canonical
// full name used when the person claims a request. An employee may hold no
// Actor privileges at all.
type Employee struct {
	ID       int64
	FullName string
}

func isValidRole(role Role) bool {
	switch role {
	case RoleOwner, RoleApprover, RoleNone:
		return true
	default:
		return false
	}
}

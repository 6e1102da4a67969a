package permission

import (
	"errors"
	"fmt"
)

// ErrDenied is the sentinel every DeniedError matches through
// errors.Is.
var ErrDenied = errors.New("permission denied")

// Role is the access level of an account. The set is closed.
type Role string

const (
	RoleGuest     Role = "guest"
	RoleUser      Role = "user"
	RolePowerUser Role = "power_user"
	RoleAdmin     Role = "admin"
)

// roleMasks is the static role→permission table. Every role maps to a
// fixed, non-empty set; admin holds the universal set. The table is
// declared exhaustively and never mutated after init.
var roleMasks = map[Role]Mask64{
	RoleGuest: maskOf(Chat),
	RoleUser: maskOf(
		Chat,
		UseModules,
		Workflow,
		HistoryRead,
		SettingsRead,
	),
	RolePowerUser: maskOf(
		Chat,
		UseModules,
		SystemCommands,
		Workflow,
		HistoryRead,
		HistoryClear,
		SettingsRead,
		SettingsWrite,
	),
	RoleAdmin: universalMask(),
}

// Roles returns every defined role from least to most privileged.
func Roles() []Role {
	return []Role{RoleGuest, RoleUser, RolePowerUser, RoleAdmin}
}

// Valid reports whether r is a defined role.
func (r Role) Valid() bool {
	_, ok := roleMasks[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// ParseRole resolves a role by its wire name.
func ParseRole(name string) (Role, bool) {
	r := Role(name)
	return r, r.Valid()
}

// MaskFor returns the permission mask granted to the role. Unknown roles
// get the empty mask.
func MaskFor(role Role) Mask64 {
	return roleMasks[role]
}

// PermissionsFor returns the permission set granted to the role, in
// declaration order.
func PermissionsFor(role Role) []Permission {
	mask := roleMasks[role]
	out := make([]Permission, 0, permissionCount)
	for p := Permission(0); p < permissionCount; p++ {
		if mask.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Has reports whether the role grants the permission.
func Has(role Role, p Permission) bool {
	return roleMasks[role].Has(p)
}

// Missing returns the subset of required that the role does not grant.
func Missing(role Role, required []Permission) []Permission {
	mask := roleMasks[role]
	var out []Permission
	for _, p := range required {
		if !mask.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Require is the explicit guard invoked at the top of protected
// operations. It returns a descriptive error naming the denied
// capability; the error matches ErrDenied through errors.Is.
func Require(role Role, p Permission) error {
	if Has(role, p) {
		return nil
	}
	return &DeniedError{Role: role, Permission: p}
}

// DeniedError reports a permission check failure.
type DeniedError struct {
	Role       Role
	Permission Permission
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("permission denied: role %q lacks %q", e.Role, e.Permission)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

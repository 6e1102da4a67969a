// Package permission defines the closed role and permission model of the
// security core: four roles, a fixed set of fine-grained capabilities, and
// a static role→permission table backed by a 64-bit mask.
package permission

import "fmt"

// Permission is a fine-grained capability. The set is closed; each value
// is a bit position inside a [Mask64].
type Permission uint8

const (
	// Chat allows conversational use of the assistant.
	Chat Permission = iota
	// UseModules allows invoking assistant modules (calendar, web search).
	UseModules
	// SystemCommands allows executing commands on the host system.
	SystemCommands
	// Workflow allows creating and running multi-step workflows.
	Workflow
	// HistoryRead allows reading conversation history.
	HistoryRead
	// HistoryClear allows clearing conversation history.
	HistoryClear
	// SettingsRead allows viewing application settings.
	SettingsRead
	// SettingsWrite allows changing application settings.
	SettingsWrite
	// ManageUsers allows user CRUD and role changes.
	ManageUsers
	// AuditRead allows querying the audit journal.
	AuditRead
	// ManageSecurity allows security configuration: 2FA policy, lockout
	// thresholds, session limits.
	ManageSecurity

	permissionCount
)

var permissionNames = [permissionCount]string{
	Chat:           "chat",
	UseModules:     "use_modules",
	SystemCommands: "system_commands",
	Workflow:       "workflow",
	HistoryRead:    "history_read",
	HistoryClear:   "history_clear",
	SettingsRead:   "settings_read",
	SettingsWrite:  "settings_write",
	ManageUsers:    "manage_users",
	AuditRead:      "audit_read",
	ManageSecurity: "manage_security",
}

// All returns every defined permission in declaration order.
func All() []Permission {
	out := make([]Permission, 0, permissionCount)
	for p := Permission(0); p < permissionCount; p++ {
		out = append(out, p)
	}
	return out
}

// Valid reports whether p is a defined permission.
func (p Permission) Valid() bool {
	return p < permissionCount
}

func (p Permission) String() string {
	if !p.Valid() {
		return fmt.Sprintf("permission(%d)", uint8(p))
	}
	return permissionNames[p]
}

// Parse resolves a permission by its wire name.
func Parse(name string) (Permission, bool) {
	for p := Permission(0); p < permissionCount; p++ {
		if permissionNames[p] == name {
			return p, true
		}
	}
	return 0, false
}

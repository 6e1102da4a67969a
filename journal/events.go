package journal

import "time"

// Severity grades an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event types form a closed taxonomy. Free-form context goes in
// Event.Action and Event.Details, never in the type.
const (
	TypeLoginSuccess           = "login_success"
	TypeLoginFailure           = "login_failure"
	TypeLogout                 = "logout"
	TypeGuestLogin             = "guest_login"
	TypeAccountLocked          = "account_locked"
	TypeSessionExpired         = "session_expired"
	TypeUserCreated            = "user_created"
	TypeUserUpdated            = "user_updated"
	TypeRoleChanged            = "role_changed"
	TypeUserDeactivated        = "user_deactivated"
	TypeUserDeleted            = "user_deleted"
	TypePasswordChanged        = "password_changed"
	TypeTwoFactorEnabled       = "two_factor_enabled"
	TypeTwoFactorDisabled      = "two_factor_disabled"
	TypeTwoFactorVerified      = "two_factor_verified"
	TypeTwoFactorFailed        = "two_factor_failed"
	TypeBackupCodeUsed         = "backup_code_used"
	TypeBackupCodesRegenerated = "backup_codes_regenerated"
	TypePermissionDenied       = "permission_denied"
	TypeSystemCommand          = "system_command"
	TypeSecurityAlert          = "security_alert"
	TypeBootstrap              = "bootstrap"
)

// Event is one immutable journal record, serialized as a single NDJSON
// line on disk.
type Event struct {
	EventID      string            `json:"event_id"`
	Timestamp    time.Time         `json:"timestamp"`
	EventType    string            `json:"event_type"`
	Severity     Severity          `json:"severity"`
	UserID       string            `json:"user_id,omitempty"`
	Username     string            `json:"username,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Action       string            `json:"action,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// Filter selects events during a Query. Zero-valued fields match
// everything.
type Filter struct {
	Since    time.Time
	Until    time.Time
	Types    []string
	UserID   string
	Username string
	Severity Severity
	Success  *bool
}

func (f Filter) matches(e Event) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if e.EventType == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Username != "" && e.Username != f.Username {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	return true
}

package authcore

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown usernames, inactive
	// accounts, and wrong passwords alike, so callers cannot enumerate
	// which of the three occurred.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned when a username has accumulated too
	// many failures inside the lockout window. It is raised before the
	// password is even inspected.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned for operations that name a
	// deactivated account explicitly (never from Authenticate).
	ErrAccountInactive = errors.New("account inactive")
	// ErrSessionExpired is returned when a session exists but its
	// expiry has passed.
	ErrSessionExpired = errors.New("session expired")
	// ErrPermissionDenied is returned by permission guards.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrWeakPassword rejects a password before hashing: minimum length
	// plus at least three of the four character classes.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrPasswordReuse rejects a password change to the current password.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrUserExists rejects a duplicate username on creation.
	ErrUserExists = errors.New("username already exists")
	// ErrUserNotFound is returned by operations that require an existing
	// user record (never by Authenticate, which folds it into
	// ErrInvalidCredentials).
	ErrUserNotFound = errors.New("user not found")
	// ErrTOTPInvalid is returned for a wrong, stale, or malformed TOTP code.
	ErrTOTPInvalid = errors.New("invalid totp code")
	// ErrTOTPNotEnabled is returned when a 2FA operation targets a user
	// without a confirmed TOTP secret.
	ErrTOTPNotEnabled = errors.New("totp not enabled")
	// ErrTOTPAlreadyEnabled rejects re-provisioning over a confirmed secret.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrBackupCodeInvalid is returned for an unknown or already-consumed
	// backup code.
	ErrBackupCodeInvalid = errors.New("invalid backup code")
	// ErrBackupCodesExhausted is returned when no unused backup codes remain.
	ErrBackupCodesExhausted = errors.New("backup codes exhausted")
	// ErrChallengeInvalid is returned for an unknown two-factor challenge
	// or one whose attempt budget is spent.
	ErrChallengeInvalid = errors.New("two-factor challenge invalid")
	// ErrChallengeExpired is returned when a two-factor challenge outlived
	// its TTL before confirmation.
	ErrChallengeExpired = errors.New("two-factor challenge expired")
	// ErrStorage wraps persistence failures. The underlying cause is
	// audited, not surfaced.
	ErrStorage = errors.New("storage failure")
	// ErrDecryption wraps authenticated-decryption failures of a stored
	// TOTP secret. Tampered ciphertext fails loudly, never silently.
	ErrDecryption = errors.New("secret decryption failed")
	// ErrEngineNotReady is returned when an Engine is used before Build
	// or after Close.
	ErrEngineNotReady = errors.New("engine not initialized")
)

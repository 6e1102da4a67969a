package authcore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/auralis-app/authcore/journal"
	"github.com/auralis-app/authcore/password"
	"github.com/auralis-app/authcore/permission"
	"github.com/auralis-app/authcore/store"
)

// CreateUser provisions an account. The password policy runs before
// any hashing; duplicate usernames are rejected.
func (e *Engine) CreateUser(ctx context.Context, username, pass string, role permission.Role) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if !e.policy.Check(pass) {
		return nil, ErrWeakPassword
	}

	if _, err := e.store.UserByName(ctx, username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, e.storeErr(ctx, "duplicate check", err)
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	salt, err := password.Salt(hash)
	if err != nil {
		return nil, fmt.Errorf("extract salt: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Salt:         salt,
		Role:         role,
		Active:       true,
		CreatedAt:    e.now(),
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrUserExists
		}
		return nil, e.storeErr(ctx, "create user", err)
	}

	e.metrics.Inc(MetricUserCreated)
	e.audit(ctx, journal.Event{
		EventType: journal.TypeUserCreated,
		UserID:    user.ID,
		Username:  username,
		Action:    "account created",
		Details:   map[string]string{"role": string(role)},
		Success:   true,
	})
	return user, nil
}

// ChangePassword rotates a credential after verifying the current one.
// The policy and recent-password history both gate the new value, and
// every other session of the account is invalidated.
func (e *Engine) ChangePassword(ctx context.Context, username, oldPass, newPass string) error {
	user, err := e.store.UserByName(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return e.storeErr(ctx, "password change lookup", err)
	}

	ok, err := e.hasher.Verify(oldPass, user.PasswordHash)
	if err != nil || !ok {
		e.metrics.Inc(MetricPasswordChangeFailure)
		e.audit(ctx, journal.Event{
			EventType: journal.TypePasswordChanged,
			Severity:  journal.SeverityWarning,
			UserID:    user.ID,
			Username:  username,
			Action:    "password change rejected: current password wrong",
		})
		return ErrInvalidCredentials
	}
	if !e.policy.Check(newPass) {
		e.metrics.Inc(MetricPasswordChangeFailure)
		return ErrWeakPassword
	}
	for _, prior := range append(user.PasswordHistory, user.PasswordHash) {
		match, err := e.hasher.Verify(newPass, prior)
		if err == nil && match {
			e.metrics.Inc(MetricPasswordChangeFailure)
			return ErrPasswordReuse
		}
	}

	hash, err := e.hasher.Hash(newPass)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	salt, err := password.Salt(hash)
	if err != nil {
		return fmt.Errorf("extract salt: %w", err)
	}

	user.PasswordHistory = append(user.PasswordHistory, user.PasswordHash)
	if max := e.config.Password.HistorySize; max > 0 && len(user.PasswordHistory) > max {
		user.PasswordHistory = user.PasswordHistory[len(user.PasswordHistory)-max:]
	}
	user.PasswordHash = hash
	user.Salt = salt
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return e.storeErr(ctx, "password change", err)
	}
	if _, err := e.store.DeleteUserSessions(ctx, user.ID); err != nil {
		return e.storeErr(ctx, "password change session sweep", err)
	}

	e.metrics.Inc(MetricPasswordChangeSuccess)
	e.audit(ctx, journal.Event{
		EventType: journal.TypePasswordChanged,
		UserID:    user.ID,
		Username:  username,
		Action:    "password changed, sessions invalidated",
		Success:   true,
	})
	return nil
}

// UpdateUser applies the non-nil fields of upd to an account.
func (e *Engine) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (*User, error) {
	user, err := e.store.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, e.storeErr(ctx, "update lookup", err)
	}

	details := map[string]string{}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, fmt.Errorf("unknown role %q", *upd.Role)
		}
		if user.Role != *upd.Role {
			details["role"] = string(*upd.Role)
			user.Role = *upd.Role
		}
	}
	if upd.Active != nil && user.Active != *upd.Active {
		details["active"] = fmt.Sprintf("%t", *upd.Active)
		user.Active = *upd.Active
	}
	if len(details) == 0 {
		return user, nil
	}

	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, e.storeErr(ctx, "update user", err)
	}
	if !user.Active {
		_, _ = e.store.DeleteUserSessions(ctx, user.ID)
	}

	e.metrics.Inc(MetricUserUpdated)
	eventType := journal.TypeUserUpdated
	if _, ok := details["role"]; ok {
		eventType = journal.TypeRoleChanged
	}
	e.audit(ctx, journal.Event{
		EventType: eventType,
		UserID:    user.ID,
		Username:  user.Username,
		Action:    "account updated",
		Details:   details,
		Success:   true,
	})
	return user, nil
}

// DeactivateUser is the default removal path: the row is kept for the
// audit trail, the account can no longer log in, and live sessions
// die.
func (e *Engine) DeactivateUser(ctx context.Context, userID string) error {
	active := false
	_, err := e.UpdateUser(ctx, userID, UserUpdate{Active: &active})
	if err != nil {
		return err
	}
	e.metrics.Inc(MetricUserDeactivated)
	e.audit(ctx, journal.Event{
		EventType: journal.TypeUserDeactivated,
		UserID:    userID,
		Action:    "account deactivated",
		Success:   true,
	})
	return nil
}

// DeleteUser permanently removes an account and its sessions. This is
// the admin-only hard delete; prefer DeactivateUser.
func (e *Engine) DeleteUser(ctx context.Context, userID string) error {
	user, err := e.store.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return e.storeErr(ctx, "delete lookup", err)
	}
	if err := e.store.DeleteUser(ctx, userID); err != nil {
		return e.storeErr(ctx, "delete user", err)
	}
	e.metrics.Inc(MetricUserDeleted)
	e.audit(ctx, journal.Event{
		EventType: journal.TypeUserDeleted,
		Severity:  journal.SeverityWarning,
		UserID:    userID,
		Username:  user.Username,
		Action:    "account permanently deleted",
		Success:   true,
	})
	return nil
}

// ListUsers returns every account.
func (e *Engine) ListUsers(ctx context.Context) ([]*User, error) {
	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, e.storeErr(ctx, "list users", err)
	}
	return users, nil
}

// Bootstrap provisions the first admin when the store is empty. The
// generated password is written exactly once to path with 0600
// permissions for operator pickup; with accounts already present it
// does nothing and reports false.
func (e *Engine) Bootstrap(ctx context.Context, username, path string) (bool, error) {
	n, err := e.store.CountUsers(ctx)
	if err != nil {
		return false, e.storeErr(ctx, "bootstrap count", err)
	}
	if n > 0 {
		return false, nil
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return false, fmt.Errorf("generate bootstrap password: %w", err)
	}
	// Mixed classes so the generated value passes the policy.
	pass := "A1!" + base64.RawURLEncoding.EncodeToString(raw)

	user, err := e.CreateUser(ctx, username, pass, permission.RoleAdmin)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(pass+"\n"), 0o600); err != nil {
		return false, fmt.Errorf("write bootstrap credential file: %w", err)
	}

	e.audit(ctx, journal.Event{
		EventType: journal.TypeBootstrap,
		Severity:  journal.SeverityWarning,
		UserID:    user.ID,
		Username:  username,
		Action:    "initial admin provisioned, credential written to " + path,
		Success:   true,
	})
	return true, nil
}

package authcore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/auralis-app/authcore/journal"
	"github.com/auralis-app/authcore/permission"
	"github.com/auralis-app/authcore/store"
)

// Authenticate verifies a username/password pair and either issues a
// session or, for accounts with two-factor enabled, opens a pending
// challenge. The lockout window is consulted before any password work;
// unknown usernames, inactive accounts and wrong passwords are
// indistinguishable to the caller.
func (e *Engine) Authenticate(ctx context.Context, username, pass, ip, userAgent string) (*LoginResult, error) {
	now := e.now()
	if e.lockout.Locked(username, now) {
		e.metrics.Inc(MetricLoginLocked)
		e.audit(ctx, journal.Event{
			EventType: journal.TypeAccountLocked,
			Severity:  journal.SeverityWarning,
			Username:  username,
			IPAddress: ip,
			Action:    "login rejected while locked",
		})
		return nil, ErrAccountLocked
	}

	user, err := e.store.UserByName(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, e.storeErr(ctx, "user lookup", err)
	}

	ok := false
	if user != nil && user.Active {
		ok, err = e.hasher.Verify(pass, user.PasswordHash)
		if err != nil {
			e.log.Error().Err(err).Str("username", username).Msg("password hash unreadable")
			ok = false
		}
	} else {
		// Burn comparable time for unknown or inactive accounts.
		_, _ = e.hasher.Hash(pass)
	}

	if !ok {
		return nil, e.loginFailure(ctx, username, ip)
	}

	e.lockout.Reset(username)

	if user.TOTPEnabled {
		challengeID := uuid.NewString()
		e.challenges.Save(challengeID, &loginChallenge{
			UserID:    user.ID,
			Username:  user.Username,
			Role:      user.Role,
			IP:        ip,
			UserAgent: userAgent,
			Origin:    originLocal,
		})
		e.metrics.Inc(MetricTwoFactorRequired)
		e.audit(ctx, journal.Event{
			EventType: journal.TypeLoginSuccess,
			UserID:    user.ID,
			Username:  user.Username,
			IPAddress: ip,
			Action:    "password accepted, awaiting second factor",
			Success:   true,
		})
		return &LoginResult{
			TwoFactorRequired: true,
			ChallengeID:       challengeID,
			UserID:            user.ID,
			Username:          user.Username,
			Role:              user.Role,
		}, nil
	}

	return e.completeLogin(ctx, user, ip, userAgent)
}

// loginFailure records one failed attempt and reports whether it
// tripped the lock.
func (e *Engine) loginFailure(ctx context.Context, username, ip string) error {
	locked := e.lockout.RecordFailure(username, e.now())
	e.metrics.Inc(MetricLoginFailure)
	if locked {
		e.metrics.Inc(MetricLoginLocked)
		e.audit(ctx, journal.Event{
			EventType: journal.TypeAccountLocked,
			Severity:  journal.SeverityCritical,
			Username:  username,
			IPAddress: ip,
			Action:    "failed logins exceeded threshold",
		})
		return ErrAccountLocked
	}
	e.audit(ctx, journal.Event{
		EventType: journal.TypeLoginFailure,
		Severity:  journal.SeverityWarning,
		Username:  username,
		IPAddress: ip,
		Action:    "invalid credentials",
	})
	return ErrInvalidCredentials
}

// completeLogin stamps the account, issues the session and writes the
// success event.
func (e *Engine) completeLogin(ctx context.Context, user *User, ip, userAgent string) (*LoginResult, error) {
	user.LastLoginAt = e.now()
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, e.storeErr(ctx, "stamp last login", err)
	}
	sess, err := e.issueSession(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricLoginSuccess)
	e.audit(ctx, journal.Event{
		EventType: journal.TypeLoginSuccess,
		UserID:    user.ID,
		Username:  user.Username,
		IPAddress: ip,
		Action:    "login",
		Success:   true,
	})
	return &LoginResult{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Session:  sess,
	}, nil
}

// GuestLogin opens an anonymous session with the minimal role. No
// account row is created; the session is the only trace.
func (e *Engine) GuestLogin(ctx context.Context, ip, userAgent string) (*LoginResult, error) {
	guest := &User{
		ID:       "guest-" + uuid.NewString(),
		Username: "guest",
		Role:     permission.RoleGuest,
		Active:   true,
	}
	sess, err := e.issueSession(ctx, guest, ip, userAgent)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricGuestLogin)
	e.audit(ctx, journal.Event{
		EventType: journal.TypeGuestLogin,
		UserID:    guest.ID,
		IPAddress: ip,
		Action:    "guest session opened",
		Success:   true,
	})
	return &LoginResult{
		UserID:   guest.ID,
		Username: guest.Username,
		Role:     guest.Role,
		Session:  sess,
	}, nil
}

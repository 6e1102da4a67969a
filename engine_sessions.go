package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/auralis-app/authcore/journal"
	"github.com/auralis-app/authcore/permission"
	"github.com/auralis-app/authcore/store"
)

// ValidateSession resolves a session ID to its owning account. A
// missing session is (nil, nil), never an error. Expired sessions are
// deleted on sight and a deactivated owner invalidates the session.
// Every call also opportunistically purges whatever else has expired.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string) (*User, error) {
	start := time.Now()
	defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()

	e.purgeExpired(ctx)

	sess, err := e.store.SessionByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, e.storeErr(ctx, "session lookup", err)
	}

	now := e.now()
	if !sess.ExpiresAt.After(now) {
		if err := e.store.DeleteSession(ctx, sessionID); err != nil {
			return nil, e.storeErr(ctx, "expired session delete", err)
		}
		e.metrics.Inc(MetricSessionExpired)
		e.audit(ctx, journal.Event{
			EventType: journal.TypeSessionExpired,
			UserID:    sess.UserID,
			Username:  sess.Username,
			Action:    "session expired on validation",
		})
		return nil, nil
	}

	if strings.HasPrefix(sess.UserID, "guest-") {
		if err := e.store.TouchSession(ctx, sessionID, now); err != nil {
			return nil, e.storeErr(ctx, "session touch", err)
		}
		return &User{ID: sess.UserID, Username: sess.Username, Role: permission.RoleGuest, Active: true}, nil
	}

	user, err := e.store.UserByID(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		_ = e.store.DeleteSession(ctx, sessionID)
		return nil, nil
	}
	if err != nil {
		return nil, e.storeErr(ctx, "session user lookup", err)
	}
	if !user.Active {
		_ = e.store.DeleteSession(ctx, sessionID)
		return nil, nil
	}

	if err := e.store.TouchSession(ctx, sessionID, now); err != nil {
		return nil, e.storeErr(ctx, "session touch", err)
	}
	return user, nil
}

// Logout deletes a session. Unknown IDs are a no-op; logging out twice
// is fine.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	sess, err := e.store.SessionByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return e.storeErr(ctx, "logout lookup", err)
	}
	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		return e.storeErr(ctx, "logout", err)
	}
	e.metrics.Inc(MetricLogout)
	e.audit(ctx, journal.Event{
		EventType: journal.TypeLogout,
		UserID:    sess.UserID,
		Username:  sess.Username,
		Action:    "logout",
		Success:   true,
	})
	return nil
}

// LogoutAll deletes every session belonging to a user.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	n, err := e.store.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, e.storeErr(ctx, "logout all", err)
	}
	if n > 0 {
		e.audit(ctx, journal.Event{
			EventType: journal.TypeLogout,
			UserID:    userID,
			Action:    "all sessions invalidated",
			Success:   true,
		})
	}
	return n, nil
}

// VerifyAccessToken checks a locally minted access token and returns
// the session owner, revalidating the underlying session.
func (e *Engine) VerifyAccessToken(ctx context.Context, raw string) (*User, error) {
	claims, err := e.tokens.verify(raw)
	if err != nil {
		return nil, nil
	}
	return e.ValidateSession(ctx, claims.SID)
}

// purgeExpired drops expired session rows and sweeps stale pending
// challenges. Failures are diagnostic only.
func (e *Engine) purgeExpired(ctx context.Context) {
	now := e.now()
	if n, err := e.store.PurgeExpiredSessions(ctx, now); err != nil {
		e.log.Warn().Err(err).Msg("session purge failed")
	} else if n > 0 {
		for i := 0; i < n; i++ {
			e.metrics.Inc(MetricSessionExpired)
		}
	}
	e.challenges.Sweep(now)
}

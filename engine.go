package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/auralis-app/authcore/journal"
	"github.com/auralis-app/authcore/password"
	"github.com/auralis-app/authcore/permission"
	"github.com/auralis-app/authcore/store"
)

// Engine is the local authentication backend. Construct it through
// the Builder; instances are immutable after Build and safe for
// concurrent use.
type Engine struct {
	config     Config
	store      *store.Store
	journal    *journal.Journal
	hasher     *password.Hasher
	policy     password.Policy
	totp       *totpManager
	secrets    *secretBox
	tokens     *tokenManager
	lockout    *lockoutTracker
	challenges *challengeStore
	metrics    *Metrics
	log        zerolog.Logger

	ownsJournal bool
}

// Close flushes and stops the audit journal when the engine opened it
// itself. The credential store belongs to the caller.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	if e.ownsJournal {
		e.journal.Close()
	} else {
		e.journal.Flush()
	}
	return nil
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.journal.Dropped()
}

// Journal exposes the audit journal for queries.
func (e *Engine) Journal() *journal.Journal {
	return e.journal
}

// CheckPermission evaluates a role against a permission and records a
// denial in the audit trail.
func (e *Engine) CheckPermission(ctx context.Context, sessionID string, perm permission.Permission) (bool, error) {
	user, err := e.ValidateSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}
	if err := permission.Require(user.Role, perm); err != nil {
		e.metrics.Inc(MetricPermissionDenied)
		e.audit(ctx, journal.Event{
			EventType: journal.TypePermissionDenied,
			Severity:  journal.SeverityWarning,
			UserID:    user.ID,
			Username:  user.Username,
			Action:    "permission check: " + perm.String(),
		})
		return false, nil
	}
	return true, nil
}

// audit queues one event on the journal.
func (e *Engine) audit(ctx context.Context, ev journal.Event) {
	e.journal.Log(ctx, ev)
}

// storeErr maps persistence failures onto the public taxonomy, keeps
// the detail in the diagnostic log and audit trail, and leaves
// not-found untouched for callers that treat absence as a result.
func (e *Engine) storeErr(ctx context.Context, op string, err error) error {
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return err
	}
	e.log.Error().Err(err).Str("op", op).Msg("credential store failure")
	e.audit(ctx, journal.Event{
		EventType:    journal.TypeSecurityAlert,
		Severity:     journal.SeverityError,
		Action:       op,
		ErrorMessage: err.Error(),
	})
	return fmt.Errorf("%w: %s", ErrStorage, op)
}

func (e *Engine) now() time.Time {
	return time.Now().UTC()
}

// issueSession persists a fresh session for the user and mints its
// access token.
func (e *Engine) issueSession(ctx context.Context, u *User, ip, userAgent string) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	sess := &Session{
		ID:        id,
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.Session.Timeout),
		LastSeen:  now,
	}
	token, err := e.tokens.mint(u.ID, id, u.Username, u.Role, now)
	if err != nil {
		return nil, err
	}
	sess.AccessToken = token
	if err := e.store.PutSession(ctx, sess); err != nil {
		return nil, e.storeErr(ctx, "put session", err)
	}
	e.metrics.Inc(MetricSessionCreated)
	return sess, nil
}

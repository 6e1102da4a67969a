package authcore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/auralis-app/authcore/permission"
	"github.com/auralis-app/authcore/remote"
)

// Hybrid fronts the remote identity service and the local Engine with
// one routing rule: try remote while it is believed reachable, fall
// back to local on any availability failure, and never let the caller
// see which backend answered. Remote unavailability is a routing
// signal only; it does not escape this type.
type Hybrid struct {
	engine  *Engine
	remote  *remote.Client
	log     zerolog.Logger
	pending *challengeStore

	available     atomic.Bool
	lastProbe     atomic.Int64
	probeInterval time.Duration
}

// NewHybrid wires the façade. A nil remote client yields a pure-local
// coordinator with identical behavior.
func NewHybrid(engine *Engine, rc *remote.Client, log zerolog.Logger) *Hybrid {
	h := &Hybrid{
		engine:        engine,
		remote:        rc,
		log:           log.With().Str("component", "hybrid").Logger(),
		pending:       newChallengeStore(engine.config.TOTP.ChallengeTTL, engine.config.TOTP.ChallengeMaxAttempts),
		probeInterval: engine.config.Remote.ProbeInterval,
	}
	h.available.Store(rc != nil)
	return h
}

// Engine exposes the local backend for operations that are local by
// nature (bootstrap, audit queries, two-factor enrollment).
func (h *Hybrid) Engine() *Engine {
	return h.engine
}

// RemoteAvailable reports the last known reachability verdict.
func (h *Hybrid) RemoteAvailable() bool {
	return h.remote != nil && h.available.Load()
}

// remoteUsable decides the route for one operation, re-probing a
// downed remote at most once per probe interval.
func (h *Hybrid) remoteUsable(ctx context.Context) bool {
	if h.remote == nil {
		return false
	}
	if h.available.Load() {
		return true
	}
	now := time.Now().UnixNano()
	last := h.lastProbe.Load()
	if now-last < h.probeInterval.Nanoseconds() || !h.lastProbe.CompareAndSwap(last, now) {
		return false
	}
	if err := h.remote.Healthy(ctx); err != nil {
		return false
	}
	h.available.Store(true)
	h.log.Info().Msg("remote identity service recovered")
	return true
}

// runHybrid is the single fallback combinator. Structured remote
// verdicts are authoritative and mapped onto the local taxonomy;
// availability failures demote the remote and rerun the operation
// locally.
func runHybrid[T any](ctx context.Context, h *Hybrid, op string, remoteFn, localFn func(context.Context) (T, error)) (T, error) {
	if h.remoteUsable(ctx) {
		out, err := remoteFn(ctx)
		switch {
		case err == nil:
			h.engine.metrics.Inc(MetricRemoteSuccess)
			return out, nil
		case errors.Is(err, remote.ErrUnavailable):
			h.demote(err, op)
		default:
			var zero T
			return zero, mapRemoteError(err)
		}
	}
	return localFn(ctx)
}

// demote marks the remote as down and accounts for one rerouted
// operation.
func (h *Hybrid) demote(err error, op string) {
	h.available.Store(false)
	h.lastProbe.Store(time.Now().UnixNano())
	h.engine.metrics.Inc(MetricRemoteFallback)
	h.log.Warn().Err(err).Str("op", op).Msg("remote unavailable, falling back to local")
}

// mapRemoteError translates structured service rejections into the
// shared taxonomy.
func mapRemoteError(err error) error {
	var apiErr *remote.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case "invalid_credentials":
		return ErrInvalidCredentials
	case "account_locked":
		return ErrAccountLocked
	case "account_inactive":
		return ErrAccountInactive
	case "session_expired":
		return ErrSessionExpired
	case "totp_invalid":
		return ErrTOTPInvalid
	case "backup_code_invalid":
		return ErrBackupCodeInvalid
	case "weak_password":
		return ErrWeakPassword
	case "user_exists":
		return ErrUserExists
	case "user_not_found":
		return ErrUserNotFound
	case "permission_denied":
		return ErrPermissionDenied
	default:
		return apiErr
	}
}

// Authenticate logs in against whichever backend is reachable. A
// remote pending-2FA answer is held in the coordinator so the
// completing code is replayed to the service that asked for it.
func (h *Hybrid) Authenticate(ctx context.Context, username, pass, ip, userAgent string) (*LoginResult, error) {
	return runHybrid(ctx, h, "authenticate",
		func(ctx context.Context) (*LoginResult, error) {
			id, err := h.remote.Login(ctx, username, pass, userAgent, "")
			if err != nil {
				return nil, err
			}
			if id.Require2FA {
				challengeID := uuid.NewString()
				h.pending.Save(challengeID, &loginChallenge{
					UserID:    id.UserID,
					Username:  username,
					Role:      permission.Role(id.Role),
					IP:        ip,
					UserAgent: userAgent,
					Origin:    originRemote,
					Password:  pass,
				})
				return &LoginResult{
					TwoFactorRequired: true,
					ChallengeID:       challengeID,
					UserID:            id.UserID,
					Username:          id.Username,
					Role:              permission.Role(id.Role),
				}, nil
			}
			return h.normalize(id, ip, userAgent), nil
		},
		func(ctx context.Context) (*LoginResult, error) {
			return h.engine.Authenticate(ctx, username, pass, ip, userAgent)
		})
}

// ConfirmTwoFactor completes a pending login on the backend that
// opened it. Remote challenges are replayed as a full login carrying
// the code; local ones go straight to the engine.
func (h *Hybrid) ConfirmTwoFactor(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	c, err := h.pending.Get(challengeID)
	if err != nil {
		if errors.Is(err, ErrChallengeInvalid) {
			return h.engine.ConfirmTwoFactor(ctx, challengeID, code)
		}
		return nil, err
	}
	return h.completeRemoteChallenge(ctx, challengeID, c, code, false)
}

// ConfirmTwoFactorBackup completes a pending login with a backup code.
func (h *Hybrid) ConfirmTwoFactorBackup(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	c, err := h.pending.Get(challengeID)
	if err != nil {
		if errors.Is(err, ErrChallengeInvalid) {
			return h.engine.ConfirmTwoFactorBackup(ctx, challengeID, code)
		}
		return nil, err
	}
	// The service accepts backup codes through the same field.
	return h.completeRemoteChallenge(ctx, challengeID, c, code, true)
}

// completeRemoteChallenge replays a remote pending login with the
// submitted code. A remote that died since opening the challenge is
// demoted and the whole login reruns locally with the retained
// credentials, so unavailability stays a routing signal here too.
func (h *Hybrid) completeRemoteChallenge(ctx context.Context, challengeID string, c loginChallenge, code string, backup bool) (*LoginResult, error) {
	id, err := h.remote.Login(ctx, c.Username, c.Password, c.UserAgent, code)
	if err != nil {
		if errors.Is(err, remote.ErrUnavailable) {
			h.demote(err, "confirm two-factor")
			h.pending.Delete(challengeID)
			return h.localReplay(ctx, c, code, backup)
		}
		mapped := mapRemoteError(err)
		if errors.Is(mapped, ErrTOTPInvalid) || errors.Is(mapped, ErrBackupCodeInvalid) {
			exceeded, ferr := h.pending.RecordFailure(challengeID)
			if ferr != nil {
				return nil, ferr
			}
			if exceeded {
				return nil, ErrChallengeInvalid
			}
		}
		return nil, mapped
	}
	if id.Require2FA {
		// The service still wants a factor; the code was not accepted.
		return nil, ErrTOTPInvalid
	}

	h.pending.Delete(challengeID)
	h.engine.metrics.Inc(MetricRemoteSuccess)
	return h.normalize(id, c.IP, c.UserAgent), nil
}

// localReplay reruns a login through the engine with the credentials a
// remote challenge retained. When the local account also requires a
// second factor the submitted code completes the fresh local
// challenge in the same call.
func (h *Hybrid) localReplay(ctx context.Context, c loginChallenge, code string, backup bool) (*LoginResult, error) {
	res, err := h.engine.Authenticate(ctx, c.Username, c.Password, c.IP, c.UserAgent)
	if err != nil {
		return nil, err
	}
	if !res.TwoFactorRequired {
		return res, nil
	}
	if backup {
		return h.engine.ConfirmTwoFactorBackup(ctx, res.ChallengeID, code)
	}
	return h.engine.ConfirmTwoFactor(ctx, res.ChallengeID, code)
}

// GuestLogin opens an anonymous session.
func (h *Hybrid) GuestLogin(ctx context.Context, ip, userAgent string) (*LoginResult, error) {
	return runHybrid(ctx, h, "guest login",
		func(ctx context.Context) (*LoginResult, error) {
			id, err := h.remote.GuestLogin(ctx)
			if err != nil {
				return nil, err
			}
			return h.normalize(id, ip, userAgent), nil
		},
		func(ctx context.Context) (*LoginResult, error) {
			return h.engine.GuestLogin(ctx, ip, userAgent)
		})
}

// Logout invalidates a session on its backend. Logging out a session
// the other backend issued is a harmless no-op there.
func (h *Hybrid) Logout(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	_, err := runHybrid(ctx, h, "logout",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, h.remote.Logout(ctx, sess.AccessToken)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, h.engine.Logout(ctx, sess.ID)
		})
	return err
}

// CheckPermission asks the remote service when reachable and otherwise
// evaluates the session's role against the local permission model.
func (h *Hybrid) CheckPermission(ctx context.Context, sess *Session, perm permission.Permission) (bool, error) {
	if sess == nil {
		return false, nil
	}
	return runHybrid(ctx, h, "check permission",
		func(ctx context.Context) (bool, error) {
			return h.remote.CheckPermission(ctx, sess.AccessToken, perm.String())
		},
		func(ctx context.Context) (bool, error) {
			return permission.Has(sess.Role, perm), nil
		})
}

// CreateUser provisions an account through the reachable backend.
// adminSess scopes the remote call; the local engine trusts its
// caller.
func (h *Hybrid) CreateUser(ctx context.Context, adminSess *Session, username, pass string, role permission.Role) (*User, error) {
	return runHybrid(ctx, h, "create user",
		func(ctx context.Context) (*User, error) {
			rec, err := h.remote.CreateUser(ctx, bearer(adminSess), username, pass, string(role))
			if err != nil {
				return nil, err
			}
			return recordToUser(rec), nil
		},
		func(ctx context.Context) (*User, error) {
			return h.engine.CreateUser(ctx, username, pass, role)
		})
}

// UpdateUser applies a partial update through the reachable backend.
func (h *Hybrid) UpdateUser(ctx context.Context, adminSess *Session, userID string, upd UserUpdate) (*User, error) {
	return runHybrid(ctx, h, "update user",
		func(ctx context.Context) (*User, error) {
			fields := map[string]any{}
			if upd.Role != nil {
				fields["role"] = string(*upd.Role)
			}
			if upd.Active != nil {
				fields["is_active"] = *upd.Active
			}
			rec, err := h.remote.UpdateUser(ctx, bearer(adminSess), userID, fields)
			if err != nil {
				return nil, err
			}
			return recordToUser(rec), nil
		},
		func(ctx context.Context) (*User, error) {
			return h.engine.UpdateUser(ctx, userID, upd)
		})
}

// DeleteUser removes an account through the reachable backend.
func (h *Hybrid) DeleteUser(ctx context.Context, adminSess *Session, userID string) error {
	_, err := runHybrid(ctx, h, "delete user",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, h.remote.DeleteUser(ctx, bearer(adminSess), userID)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, h.engine.DeleteUser(ctx, userID)
		})
	return err
}

// ListUsers enumerates accounts through the reachable backend.
func (h *Hybrid) ListUsers(ctx context.Context, adminSess *Session) ([]*User, error) {
	return runHybrid(ctx, h, "list users",
		func(ctx context.Context) ([]*User, error) {
			recs, err := h.remote.ListUsers(ctx, bearer(adminSess))
			if err != nil {
				return nil, err
			}
			users := make([]*User, 0, len(recs))
			for i := range recs {
				users = append(users, recordToUser(&recs[i]))
			}
			return users, nil
		},
		func(ctx context.Context) ([]*User, error) {
			return h.engine.ListUsers(ctx)
		})
}

// normalize turns a remote identity into the shared LoginResult shape.
func (h *Hybrid) normalize(id *remote.Identity, ip, userAgent string) *LoginResult {
	now := time.Now().UTC()
	return &LoginResult{
		UserID:   id.UserID,
		Username: id.Username,
		Role:     permission.Role(id.Role),
		Session: &Session{
			ID:          id.SessionID,
			UserID:      id.UserID,
			Username:    id.Username,
			Role:        permission.Role(id.Role),
			IP:          ip,
			UserAgent:   userAgent,
			AccessToken: id.AccessToken,
			CreatedAt:   now,
			ExpiresAt:   now.Add(h.engine.config.Session.Timeout),
			LastSeen:    now,
		},
	}
}

func recordToUser(rec *remote.UserRecord) *User {
	return &User{
		ID:       rec.UserID,
		Username: rec.Username,
		Role:     permission.Role(rec.Role),
		Active:   rec.IsActive,
	}
}

func bearer(sess *Session) string {
	if sess == nil {
		return ""
	}
	return sess.AccessToken
}

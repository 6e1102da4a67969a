package authcore

import (
	"context"
	"errors"
	"strconv"

	"github.com/auralis-app/authcore/journal"
	"github.com/auralis-app/authcore/store"
)

// ConfirmTwoFactor completes a pending login with a TOTP code. The
// challenge is burned after too many wrong codes or on expiry;
// completing it issues the session the password step withheld.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	c, user, err := e.pendingChallengeUser(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	secret, err := e.totpSecret(ctx, user)
	if err != nil {
		return nil, err
	}
	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		e.log.Error().Err(err).Str("user_id", user.ID).Msg("totp verification failed")
		return nil, ErrTOTPInvalid
	}
	if !ok {
		return nil, e.challengeFailure(ctx, challengeID, user, ErrTOTPInvalid)
	}

	e.challenges.Delete(challengeID)
	e.metrics.Inc(MetricTwoFactorSuccess)
	e.audit(ctx, journal.Event{
		EventType: journal.TypeTwoFactorVerified,
		UserID:    user.ID,
		Username:  user.Username,
		IPAddress: c.IP,
		Action:    "totp accepted",
		Success:   true,
	})
	return e.completeLogin(ctx, user, c.IP, c.UserAgent)
}

// ConfirmTwoFactorBackup completes a pending login with a one-time
// backup code. The consumed hash is persisted before the session is
// issued so a crash can never resurrect the code.
func (e *Engine) ConfirmTwoFactorBackup(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	c, user, err := e.pendingChallengeUser(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	if len(user.BackupCodeHashes) == 0 {
		e.challenges.Delete(challengeID)
		return nil, ErrBackupCodesExhausted
	}
	remaining, ok := consumeBackupCode(user.BackupCodeHashes, code)
	if !ok {
		e.metrics.Inc(MetricBackupCodeFailed)
		return nil, e.challengeFailure(ctx, challengeID, user, ErrBackupCodeInvalid)
	}

	user.BackupCodeHashes = remaining
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, e.storeErr(ctx, "consume backup code", err)
	}

	e.challenges.Delete(challengeID)
	e.metrics.Inc(MetricBackupCodeUsed)
	e.audit(ctx, journal.Event{
		EventType: journal.TypeBackupCodeUsed,
		Severity:  journal.SeverityWarning,
		UserID:    user.ID,
		Username:  user.Username,
		IPAddress: c.IP,
		Action:    "backup code consumed",
		Details:   map[string]string{"remaining": strconv.Itoa(len(remaining))},
		Success:   true,
	})
	return e.completeLogin(ctx, user, c.IP, c.UserAgent)
}

// pendingChallengeUser resolves a live challenge and its account. A
// challenge whose owner disappeared or was deactivated is burned.
func (e *Engine) pendingChallengeUser(ctx context.Context, challengeID string) (loginChallenge, *User, error) {
	c, err := e.challenges.Get(challengeID)
	if err != nil {
		return loginChallenge{}, nil, err
	}
	user, err := e.store.UserByID(ctx, c.UserID)
	if errors.Is(err, store.ErrNotFound) {
		e.challenges.Delete(challengeID)
		return loginChallenge{}, nil, ErrChallengeInvalid
	}
	if err != nil {
		return loginChallenge{}, nil, e.storeErr(ctx, "challenge user lookup", err)
	}
	if !user.Active {
		e.challenges.Delete(challengeID)
		return loginChallenge{}, nil, ErrChallengeInvalid
	}
	return c, user, nil
}

// challengeFailure bumps the challenge attempt counter and returns the
// caller's error, or the burn error when attempts ran out.
func (e *Engine) challengeFailure(ctx context.Context, challengeID string, user *User, cause error) error {
	e.metrics.Inc(MetricTwoFactorFailure)
	e.audit(ctx, journal.Event{
		EventType:    journal.TypeTwoFactorFailed,
		Severity:     journal.SeverityWarning,
		UserID:       user.ID,
		Username:     user.Username,
		Action:       "second factor rejected",
		ErrorMessage: cause.Error(),
	})
	exceeded, err := e.challenges.RecordFailure(challengeID)
	if err != nil {
		return err
	}
	if exceeded {
		return ErrChallengeInvalid
	}
	return cause
}

// totpSecret decrypts the stored secret for an account with 2FA on.
func (e *Engine) totpSecret(ctx context.Context, user *User) ([]byte, error) {
	if !user.TOTPEnabled || user.TOTPSecret == "" {
		return nil, ErrTOTPNotEnabled
	}
	secret, err := e.secrets.Open(user.TOTPSecret)
	if err != nil {
		e.audit(ctx, journal.Event{
			EventType:    journal.TypeSecurityAlert,
			Severity:     journal.SeverityCritical,
			UserID:       user.ID,
			Username:     user.Username,
			Action:       "totp secret failed authentication",
			ErrorMessage: err.Error(),
		})
		return nil, err
	}
	return secret, nil
}

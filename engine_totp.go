package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/auralis-app/authcore/journal"
	"github.com/auralis-app/authcore/store"
)

// EnableTwoFactor starts TOTP enrollment for an account. The secret
// and backup codes are generated and persisted immediately, but the
// account does not require a second factor until the enrollment is
// proven with ConfirmTwoFactorSetup. The returned plaintext codes and
// QR image exist only in this response.
func (e *Engine) EnableTwoFactor(ctx context.Context, username string) (*TwoFactorSetup, error) {
	user, err := e.userByName(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	sealed, err := e.secrets.Seal(raw)
	if err != nil {
		return nil, err
	}
	codes, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	qr, err := e.totp.QRImage(encoded, username, 0)
	if err != nil {
		return nil, err
	}

	user.TOTPSecret = sealed
	user.BackupCodeHashes = hashes
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, e.storeErr(ctx, "stage totp enrollment", err)
	}

	return &TwoFactorSetup{
		Secret:       encoded,
		ProvisionURI: e.totp.ProvisionURI(encoded, username),
		QRPNG:        qr,
		BackupCodes:  codes,
	}, nil
}

// ConfirmTwoFactorSetup proves the authenticator was enrolled by
// accepting one valid code, then turns the second factor on.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, username, code string) error {
	user, err := e.userByName(ctx, username)
	if err != nil {
		return err
	}
	if user.TOTPEnabled {
		return ErrTOTPAlreadyEnabled
	}
	if user.TOTPSecret == "" {
		return ErrTOTPNotEnabled
	}

	if err := e.verifyUserCode(ctx, user, code); err != nil {
		return err
	}

	user.TOTPEnabled = true
	user.TwoFactorSetupAt = e.now()
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return e.storeErr(ctx, "confirm totp enrollment", err)
	}

	e.audit(ctx, journal.Event{
		EventType: journal.TypeTwoFactorEnabled,
		UserID:    user.ID,
		Username:  username,
		Action:    "two-factor enrollment confirmed",
		Success:   true,
	})
	return nil
}

// DisableTwoFactor turns the second factor off. A valid current code
// is required so a hijacked session cannot silently weaken the
// account.
func (e *Engine) DisableTwoFactor(ctx context.Context, username, code string) error {
	user, err := e.userByName(ctx, username)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return ErrTOTPNotEnabled
	}
	if err := e.verifyUserCode(ctx, user, code); err != nil {
		return err
	}

	user.TOTPEnabled = false
	user.TOTPSecret = ""
	user.BackupCodeHashes = nil
	user.TwoFactorSetupAt = time.Time{}
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return e.storeErr(ctx, "disable totp", err)
	}

	e.audit(ctx, journal.Event{
		EventType: journal.TypeTwoFactorDisabled,
		Severity:  journal.SeverityWarning,
		UserID:    user.ID,
		Username:  username,
		Action:    "two-factor disabled",
		Success:   true,
	})
	return nil
}

// RegenerateBackupCodes replaces the whole backup code set. Requires a
// valid current TOTP code; previously issued codes die immediately.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, username, code string) ([]string, error) {
	user, err := e.userByName(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.TOTPEnabled {
		return nil, ErrTOTPNotEnabled
	}
	if err := e.verifyUserCode(ctx, user, code); err != nil {
		return nil, err
	}

	codes, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	user.BackupCodeHashes = hashes
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, e.storeErr(ctx, "regenerate backup codes", err)
	}

	e.metrics.Inc(MetricBackupCodesRegenerated)
	e.audit(ctx, journal.Event{
		EventType: journal.TypeBackupCodesRegenerated,
		Severity:  journal.SeverityWarning,
		UserID:    user.ID,
		Username:  username,
		Action:    "backup codes regenerated",
		Details:   map[string]string{"count": strconv.Itoa(len(codes))},
		Success:   true,
	})
	return codes, nil
}

// verifyUserCode decrypts the account's secret and checks one TOTP
// code against it.
func (e *Engine) verifyUserCode(ctx context.Context, user *User, code string) error {
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
		return err
	}
	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		e.metrics.Inc(MetricTwoFactorFailure)
		e.audit(ctx, journal.Event{
			EventType: journal.TypeTwoFactorFailed,
			Severity:  journal.SeverityWarning,
			UserID:    user.ID,
			Username:  user.Username,
			Action:    "totp code rejected",
		})
		return ErrTOTPInvalid
	}
	return nil
}

func (e *Engine) userByName(ctx context.Context, username string) (*User, error) {
	user, err := e.store.UserByName(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, e.storeErr(ctx, "user lookup", err)
	}
	return user, nil
}

package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/auralis-app/authcore/permission"
)

func TestTwoFactorLoginFlow(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)
	secret, _ := enrollTwoFactor(t, e, "alice")

	res, err := e.Authenticate(ctx, "alice", testPassword, "10.0.0.5", "desktop")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !res.TwoFactorRequired || res.Session != nil {
		t.Fatalf("expected pending result, got %+v", res)
	}
	if res.ChallengeID == "" || res.Username != "alice" {
		t.Fatalf("incomplete pending result: %+v", res)
	}

	done, err := e.ConfirmTwoFactor(ctx, res.ChallengeID, codeFor(t, e, secret))
	if err != nil {
		t.Fatalf("ConfirmTwoFactor: %v", err)
	}
	if done.Session == nil || done.TwoFactorRequired {
		t.Fatalf("challenge completion did not issue session: %+v", done)
	}

	// The challenge is single-use.
	if _, err := e.ConfirmTwoFactor(ctx, res.ChallengeID, codeFor(t, e, secret)); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("reused challenge: want ErrChallengeInvalid, got %v", err)
	}
}

func TestTwoFactorWrongCodeBurnsChallenge(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)
	enrollTwoFactor(t, e, "alice")

	res, err := e.Authenticate(ctx, "alice", testPassword, "", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	max := e.config.TOTP.ChallengeMaxAttempts
	for i := 0; i < max; i++ {
		_, err := e.ConfirmTwoFactor(ctx, res.ChallengeID, "000000")
		if i < max-1 && !errors.Is(err, ErrTOTPInvalid) {
			t.Fatalf("attempt %d: want ErrTOTPInvalid, got %v", i, err)
		}
		if i == max-1 && !errors.Is(err, ErrChallengeInvalid) {
			t.Fatalf("attempt %d: want ErrChallengeInvalid, got %v", i, err)
		}
	}
}

func TestBackupCodeCompletesLoginOnce(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)
	_, codes := enrollTwoFactor(t, e, "alice")
	if len(codes) == 0 {
		t.Fatal("no backup codes issued")
	}
	for _, c := range codes {
		if len(c) != 14 || strings.Count(c, "-") != 2 {
			t.Fatalf("backup code format %q", c)
		}
	}

	res, _ := e.Authenticate(ctx, "alice", testPassword, "", "")
	done, err := e.ConfirmTwoFactorBackup(ctx, res.ChallengeID, codes[0])
	if err != nil {
		t.Fatalf("ConfirmTwoFactorBackup: %v", err)
	}
	if done.Session == nil {
		t.Fatal("backup completion did not issue session")
	}

	// Same code again on a fresh challenge must fail.
	res2, _ := e.Authenticate(ctx, "alice", testPassword, "", "")
	if _, err := e.ConfirmTwoFactorBackup(ctx, res2.ChallengeID, codes[0]); !errors.Is(err, ErrBackupCodeInvalid) {
		t.Fatalf("reused backup code: want ErrBackupCodeInvalid, got %v", err)
	}

	// A different code still works.
	if _, err := e.ConfirmTwoFactorBackup(ctx, res2.ChallengeID, codes[1]); err != nil {
		t.Fatalf("second backup code: %v", err)
	}
}

func TestEnableTwoFactorReturnsProvisioning(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)

	setup, err := e.EnableTwoFactor(ctx, "alice")
	if err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	if setup.Secret == "" || len(setup.QRPNG) == 0 {
		t.Fatal("setup missing secret or QR image")
	}
	if !strings.HasPrefix(setup.ProvisionURI, "otpauth://totp/") {
		t.Fatalf("provision URI %q", setup.ProvisionURI)
	}
	if !strings.Contains(setup.ProvisionURI, "secret="+setup.Secret) {
		t.Fatal("provision URI missing secret")
	}

	// Until confirmed, login does not demand a second factor.
	res, err := e.Authenticate(ctx, "alice", testPassword, "", "")
	if err != nil || res.TwoFactorRequired {
		t.Fatalf("unconfirmed enrollment must not gate login: %+v err=%v", res, err)
	}

	if _, err := e.EnableTwoFactor(ctx, "alice"); err != nil {
		t.Fatalf("restarting unconfirmed enrollment: %v", err)
	}
}

func TestConfirmSetupRejectsWrongCode(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)

	if _, err := e.EnableTwoFactor(ctx, "alice"); err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	if err := e.ConfirmTwoFactorSetup(ctx, "alice", "000000"); !errors.Is(err, ErrTOTPInvalid) {
		t.Fatalf("want ErrTOTPInvalid, got %v", err)
	}
}

func TestDisableTwoFactorRequiresCode(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)
	secret, _ := enrollTwoFactor(t, e, "alice")

	if err := e.DisableTwoFactor(ctx, "alice", "000000"); !errors.Is(err, ErrTOTPInvalid) {
		t.Fatalf("want ErrTOTPInvalid, got %v", err)
	}
	if err := e.DisableTwoFactor(ctx, "alice", codeFor(t, e, secret)); err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}

	res, err := e.Authenticate(ctx, "alice", testPassword, "", "")
	if err != nil || res.TwoFactorRequired {
		t.Fatalf("2fa still gating after disable: %+v err=%v", res, err)
	}
}

func TestRegenerateBackupCodesInvalidatesOld(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)
	secret, oldCodes := enrollTwoFactor(t, e, "alice")

	newCodes, err := e.RegenerateBackupCodes(ctx, "alice", codeFor(t, e, secret))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes: %v", err)
	}
	if len(newCodes) != backupCodeCount {
		t.Fatalf("got %d codes", len(newCodes))
	}

	res, _ := e.Authenticate(ctx, "alice", testPassword, "", "")
	if _, err := e.ConfirmTwoFactorBackup(ctx, res.ChallengeID, oldCodes[0]); !errors.Is(err, ErrBackupCodeInvalid) {
		t.Fatalf("old code after regeneration: want ErrBackupCodeInvalid, got %v", err)
	}
	if _, err := e.ConfirmTwoFactorBackup(ctx, res.ChallengeID, newCodes[0]); err != nil {
		t.Fatalf("new code: %v", err)
	}
}

func TestTamperedSecretFailsLoudly(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	user := mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)
	enrollTwoFactor(t, e, "alice")

	stored, err := e.store.UserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	flipped := byte('A')
	if stored.TOTPSecret[0] == 'A' {
		flipped = 'B'
	}
	stored.TOTPSecret = string(flipped) + stored.TOTPSecret[1:]
	if err := e.store.UpdateUser(ctx, stored); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	res, _ := e.Authenticate(ctx, "alice", testPassword, "", "")
	if _, err := e.ConfirmTwoFactor(ctx, res.ChallengeID, "123456"); !errors.Is(err, ErrDecryption) {
		t.Fatalf("want ErrDecryption, got %v", err)
	}
}

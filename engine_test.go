package authcore

import (
	"bytes"
	"context"
	"encoding/base32"
	"testing"
	"time"

	"github.com/auralis-app/authcore/permission"
	"github.com/auralis-app/authcore/store"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Session.SigningKey = bytes.Repeat([]byte{0x5a}, 32)
	cfg.TOTP.SecretKey = bytes.Repeat([]byte{0x7f}, 32)
	cfg.Journal.Dir = t.TempDir()
	// Cheap hashing keeps the suite fast; production costs are the
	// config defaults.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	engine, err := New().WithConfig(cfg).WithStore(st).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func mustCreateUser(t *testing.T, e *Engine, username, pass string, role permission.Role) *User {
	t.Helper()
	user, err := e.CreateUser(context.Background(), username, pass, role)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return user
}

// codeFor computes the currently valid TOTP code for a base32 secret,
// the same way an enrolled authenticator app would.
func codeFor(t *testing.T, e *Engine, secretBase32 string) string {
	t.Helper()
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretBase32)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	counter := time.Now().UTC().Unix() / int64(e.config.TOTP.Period)
	code, err := hotpCode(secret, counter, e.config.TOTP.Digits, e.config.TOTP.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode: %v", err)
	}
	return code
}

// enrollTwoFactor walks a user through enrollment and returns the
// base32 secret and the plaintext backup codes.
func enrollTwoFactor(t *testing.T, e *Engine, username string) (string, []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := e.EnableTwoFactor(ctx, username)
	if err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	if err := e.ConfirmTwoFactorSetup(ctx, username, codeFor(t, e, setup.Secret)); err != nil {
		t.Fatalf("ConfirmTwoFactorSetup: %v", err)
	}
	return setup.Secret, setup.BackupCodes
}

const testPassword = "Corr3ct-Horse!"

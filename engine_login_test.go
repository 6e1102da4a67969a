package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auralis-app/authcore/permission"
)

func TestAuthenticateIssuesSession(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)

	res, err := e.Authenticate(ctx, "alice", testPassword, "10.0.0.5", "desktop")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.TwoFactorRequired {
		t.Fatal("unexpected two-factor requirement")
	}
	if res.Session == nil || res.Session.ID == "" || res.Session.AccessToken == "" {
		t.Fatalf("incomplete session: %+v", res.Session)
	}
	if res.Role != permission.RoleUser {
		t.Fatalf("role %q", res.Role)
	}

	user, err := e.ValidateSession(ctx, res.Session.ID)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if user == nil || user.Username != "alice" {
		t.Fatalf("session did not resolve to alice: %+v", user)
	}
	if user.LastLoginAt.IsZero() {
		t.Fatal("last login not stamped")
	}
}

func TestAuthenticateFailuresIndistinguishable(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)

	inactive := mustCreateUser(t, e, "bob", testPassword, permission.RoleUser)
	if err := e.DeactivateUser(ctx, inactive.ID); err != nil {
		t.Fatalf("DeactivateUser: %v", err)
	}

	cases := []struct {
		name     string
		username string
		pass     string
	}{
		{"wrong password", "alice", "Wr0ng-Pass!"},
		{"unknown user", "ghost", testPassword},
		{"inactive account", "bob", testPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Authenticate(ctx, tc.username, tc.pass, "", "")
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("want ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)

	max := e.config.Lockout.MaxAttempts
	for i := 0; i < max; i++ {
		_, err := e.Authenticate(ctx, "alice", "Wr0ng-Pass!", "", "")
		if i < max-1 && !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: want ErrInvalidCredentials, got %v", i, err)
		}
		if i == max-1 && !errors.Is(err, ErrAccountLocked) {
			t.Fatalf("attempt %d: want ErrAccountLocked, got %v", i, err)
		}
	}

	// Correct password is rejected without being checked while locked.
	if _, err := e.Authenticate(ctx, "alice", testPassword, "", ""); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("want ErrAccountLocked, got %v", err)
	}
}

func TestLockoutWindowSlides(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		cfg.Lockout.Window = 50 * time.Millisecond
		cfg.Lockout.MaxAttempts = 2
	})
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)

	e.Authenticate(ctx, "alice", "Wr0ng-Pass!", "", "")
	e.Authenticate(ctx, "alice", "Wr0ng-Pass!", "", "")
	if _, err := e.Authenticate(ctx, "alice", testPassword, "", ""); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("want ErrAccountLocked, got %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := e.Authenticate(ctx, "alice", testPassword, "", ""); err != nil {
		t.Fatalf("login after window should succeed: %v", err)
	}
}

func TestSuccessClearsFailureCount(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)

	for i := 0; i < e.config.Lockout.MaxAttempts-1; i++ {
		e.Authenticate(ctx, "alice", "Wr0ng-Pass!", "", "")
	}
	if _, err := e.Authenticate(ctx, "alice", testPassword, "", ""); err != nil {
		t.Fatalf("login below threshold: %v", err)
	}
	// The counter reset; a single new failure must not lock.
	if _, err := e.Authenticate(ctx, "alice", "Wr0ng-Pass!", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestGuestLogin(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := e.GuestLogin(ctx, "10.0.0.9", "kiosk")
	if err != nil {
		t.Fatalf("GuestLogin: %v", err)
	}
	if res.Role != permission.RoleGuest || res.Session == nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	user, err := e.ValidateSession(ctx, res.Session.ID)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if user == nil || user.Role != permission.RoleGuest {
		t.Fatalf("guest session resolved to %+v", user)
	}

	allowed, err := e.CheckPermission(ctx, res.Session.ID, permission.Chat)
	if err != nil || !allowed {
		t.Fatalf("guest chat permission: allowed=%v err=%v", allowed, err)
	}
	allowed, err = e.CheckPermission(ctx, res.Session.ID, permission.SystemCommands)
	if err != nil || allowed {
		t.Fatalf("guest system commands must be denied: allowed=%v err=%v", allowed, err)
	}
}

func TestLoginMetrics(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, e, "alice", testPassword, permission.RoleUser)

	e.Authenticate(ctx, "alice", testPassword, "", "")
	e.Authenticate(ctx, "alice", "Wr0ng-Pass!", "", "")

	if got := e.metrics.Value(MetricLoginSuccess); got != 1 {
		t.Fatalf("login success counter %d", got)
	}
	if got := e.metrics.Value(MetricLoginFailure); got != 1 {
		t.Fatalf("login failure counter %d", got)
	}
	if got := e.metrics.Value(MetricSessionCreated); got != 1 {
		t.Fatalf("session created counter %d", got)
	}
}

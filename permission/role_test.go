package permission

import (
	"errors"
	"testing"
)

func TestAdminHoldsEveryPermission(t *testing.T) {
	for _, p := range All() {
		if !Has(RoleAdmin, p) {
			t.Fatalf("expected admin to hold %s", p)
		}
	}
}

func TestGuestHoldsOnlyChat(t *testing.T) {
	for _, p := range All() {
		got := Has(RoleGuest, p)
		want := p == Chat
		if got != want {
			t.Fatalf("guest Has(%s) = %v, want %v", p, got, want)
		}
	}
}

func TestEveryRoleDeclaredNonEmpty(t *testing.T) {
	for _, r := range Roles() {
		perms := PermissionsFor(r)
		if len(perms) == 0 {
			t.Fatalf("role %s maps to an empty permission set", r)
		}
	}
}

func TestMissing(t *testing.T) {
	required := []Permission{Chat, SystemCommands, ManageUsers}

	missing := Missing(RoleUser, required)
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing permissions for user, got %v", missing)
	}
	if missing[0] != SystemCommands || missing[1] != ManageUsers {
		t.Fatalf("unexpected missing set: %v", missing)
	}

	if got := Missing(RoleAdmin, required); got != nil {
		t.Fatalf("expected no missing permissions for admin, got %v", got)
	}
}

func TestRequire(t *testing.T) {
	if err := Require(RolePowerUser, SystemCommands); err != nil {
		t.Fatalf("expected power_user to pass system_commands guard: %v", err)
	}

	err := Require(RoleUser, SystemCommands)
	if err == nil {
		t.Fatal("expected guard failure for user/system_commands")
	}
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %T", err)
	}
	if denied.Role != RoleUser || denied.Permission != SystemCommands {
		t.Fatalf("unexpected denial detail: %+v", denied)
	}
	if !errors.Is(err, ErrDenied) {
		t.Fatal("denial does not match ErrDenied sentinel")
	}
}

func TestParseRoundTrips(t *testing.T) {
	for _, p := range All() {
		got, ok := Parse(p.String())
		if !ok || got != p {
			t.Fatalf("Parse(%q) = %v, %v", p.String(), got, ok)
		}
	}
	if _, ok := Parse("no_such_permission"); ok {
		t.Fatal("expected unknown permission name to fail")
	}

	for _, r := range Roles() {
		got, ok := ParseRole(r.String())
		if !ok || got != r {
			t.Fatalf("ParseRole(%q) = %v, %v", r.String(), got, ok)
		}
	}
	if _, ok := ParseRole("superuser"); ok {
		t.Fatal("expected unknown role name to fail")
	}
}

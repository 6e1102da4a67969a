package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunBootstrapAndListUsers(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "authcore.db")
	out := filepath.Join(dir, "admin-credentials.txt")

	err := run([]string{"-db", db, "-journal", filepath.Join(dir, "audit"),
		"bootstrap", "-username", "admin", "-out", out})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("credential file missing: %v", err)
	}

	err = run([]string{"-db", db, "-journal", filepath.Join(dir, "audit"), "list-users"})
	if err != nil {
		t.Fatalf("list-users: %v", err)
	}
}

func TestRunHonorsEnvironmentConfig(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "authcore.db")
	t.Setenv("AUTHCORE_JOURNAL_DIR", filepath.Join(dir, "env-audit"))

	err := run([]string{"-db", db, "create-user",
		"-username", "carol", "-password", "Str0ng!Pass", "-role", "user"})
	if err != nil {
		t.Fatalf("create-user: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "env-audit")); err != nil {
		t.Fatalf("journal not opened at env-configured directory: %v", err)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	dir := t.TempDir()
	err := run([]string{"-db", filepath.Join(dir, "x.db"),
		"-journal", filepath.Join(dir, "audit"), "frobnicate"})
	if err == nil {
		t.Fatal("unknown command accepted")
	}
}

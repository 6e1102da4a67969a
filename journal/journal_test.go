package journal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newJournal(t *testing.T, cfg Config) *Journal {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	j, err := Open(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(j.Close)
	return j
}

func logN(j *Journal, n int, eventType string) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		j.Log(ctx, Event{EventType: eventType, Username: "alice", Success: true})
	}
}

func TestBufferedUntilFlush(t *testing.T) {
	dir := t.TempDir()
	j := newJournal(t, Config{Dir: dir, FlushThreshold: 100})

	logN(j, 5, TypeLoginSuccess)
	// Below the threshold nothing should have reached disk yet.
	waitFor(t, func() bool { return len(j.ch) == 0 })
	if _, err := os.Stat(filepath.Join(dir, activeName)); !os.IsNotExist(err) {
		t.Fatalf("active file exists before flush (err=%v)", err)
	}

	j.Flush()
	if got := j.Written(); got != 5 {
		t.Fatalf("written %d events, want 5", got)
	}
	events, err := j.Query(context.Background(), Filter{}, 50)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("queried %d events, want 5", len(events))
	}
}

func TestThresholdTriggersFlush(t *testing.T) {
	dir := t.TempDir()
	j := newJournal(t, Config{Dir: dir, FlushThreshold: 3})

	logN(j, 3, TypeLoginFailure)
	waitFor(t, func() bool { return j.Written() == 3 })
}

func TestEventDefaultsAssigned(t *testing.T) {
	j := newJournal(t, Config{})
	j.Log(context.Background(), Event{EventType: TypeLogout})
	j.Flush()

	events, err := j.Query(context.Background(), Filter{}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	e := events[0]
	if e.EventID == "" || e.Timestamp.IsZero() || e.Severity != SeverityInfo {
		t.Fatalf("defaults not assigned: %+v", e)
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	j := newJournal(t, Config{Dir: dir, FlushThreshold: 1, MaxFileBytes: 200})

	logN(j, 10, TypeLoginSuccess)
	j.Flush()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	rotated := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), rotatedPrefix) {
			rotated++
		}
	}
	if rotated == 0 {
		t.Fatal("no rotated files after exceeding size threshold")
	}

	// Every event stays queryable across the rotation boundary.
	events, err := j.Query(context.Background(), Filter{}, 100)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 10 {
		t.Fatalf("queried %d events across rotation, want 10", len(events))
	}
}

func TestRetentionPurge(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, rotatedPrefix+time.Now().UTC().AddDate(0, 0, -30).Format(stampLayout)+rotatedSuffix)
	fresh := filepath.Join(dir, rotatedPrefix+time.Now().UTC().Format(stampLayout)+rotatedSuffix)
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("{}\n"), 0o600); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}

	j := newJournal(t, Config{Dir: dir, RetentionDays: 7})
	j.purgeExpired()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expired rotated file survived purge")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh rotated file purged: %v", err)
	}
}

func TestQueryFilters(t *testing.T) {
	j := newJournal(t, Config{})
	ctx := context.Background()
	j.Log(ctx, Event{EventType: TypeLoginSuccess, Username: "alice", UserID: "u1", Success: true})
	j.Log(ctx, Event{EventType: TypeLoginFailure, Username: "alice", UserID: "u1", Severity: SeverityWarning})
	j.Log(ctx, Event{EventType: TypeLoginFailure, Username: "bob", UserID: "u2", Severity: SeverityWarning})
	j.Log(ctx, Event{EventType: TypeAccountLocked, Username: "bob", UserID: "u2", Severity: SeverityCritical})
	j.Flush()

	cases := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by type", Filter{Types: []string{TypeLoginFailure}}, 2},
		{"by user", Filter{Username: "bob"}, 2},
		{"by severity", Filter{Severity: SeverityCritical}, 1},
		{"by success", Filter{Success: boolPtr(true)}, 1},
		{"type and user", Filter{Types: []string{TypeLoginFailure}, UserID: "u2"}, 1},
		{"future since", Filter{Since: time.Now().Add(time.Hour)}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, err := j.Query(ctx, tc.filter, 100)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(events) != tc.want {
				t.Fatalf("got %d events, want %d", len(events), tc.want)
			}
		})
	}
}

func TestQueryNewestFirstWithLimit(t *testing.T) {
	j := newJournal(t, Config{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		j.Log(ctx, Event{
			EventType: TypeLoginSuccess,
			Username:  "alice",
			Timestamp: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
		})
	}
	j.Flush()

	events, err := j.Query(ctx, Filter{}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if !events[0].Timestamp.After(events[1].Timestamp) {
		t.Fatalf("not newest-first: %v then %v", events[0].Timestamp, events[1].Timestamp)
	}
}

func TestDropIfFull(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, BufferSize: 1, FlushThreshold: 1000, DropIfFull: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	logN(j, 500, TypeLoginSuccess)
	j.Flush()
	if j.Dropped()+j.Written() != 500 {
		t.Fatalf("dropped %d + written %d != 500", j.Dropped(), j.Written())
	}
}

func TestLogAfterCloseIsNoOp(t *testing.T) {
	j := newJournal(t, Config{})
	j.Close()
	j.Log(context.Background(), Event{EventType: TypeLogout})
	j.Flush()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func boolPtr(b bool) *bool { return &b }

package authcore

import (
	"sync"
	"time"
)

// lockoutTracker counts failed logins per username inside a sliding
// window, entirely in memory. Timestamps older than the window are
// pruned on every touch so the map stays bounded by the number of
// usernames seen recently.
type lockoutTracker struct {
	mu          sync.Mutex
	failures    map[string][]time.Time
	window      time.Duration
	maxAttempts int
}

func newLockoutTracker(window time.Duration, maxAttempts int) *lockoutTracker {
	return &lockoutTracker{
		failures:    make(map[string][]time.Time),
		window:      window,
		maxAttempts: maxAttempts,
	}
}

// Locked reports whether the username has reached the failure ceiling
// inside the current window.
func (t *lockoutTracker) Locked(username string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.prune(username, now)) >= t.maxAttempts
}

// RecordFailure registers one failed attempt and reports whether this
// failure tripped the lock.
func (t *lockoutTracker) RecordFailure(username string, now time.Time) (locked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := append(t.prune(username, now), now)
	t.failures[username] = kept
	return len(kept) >= t.maxAttempts
}

// Reset clears the failure history after a successful login.
func (t *lockoutTracker) Reset(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, username)
}

// Remaining reports how many attempts are left before lockout.
func (t *lockoutTracker) Remaining(username string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	left := t.maxAttempts - len(t.prune(username, now))
	if left < 0 {
		return 0
	}
	return left
}

// prune drops stamps outside the window and stores the survivors.
// Callers must hold mu.
func (t *lockoutTracker) prune(username string, now time.Time) []time.Time {
	cutoff := now.Add(-t.window)
	stamps := t.failures[username]
	kept := stamps[:0]
	for _, s := range stamps {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(t.failures, username)
		return nil
	}
	t.failures[username] = kept
	return kept
}

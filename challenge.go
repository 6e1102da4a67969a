package authcore

import (
	"sync"
	"time"

	"github.com/auralis-app/authcore/permission"
)

type challengeOrigin uint8

const (
	originLocal challengeOrigin = iota
	originRemote
)

// loginChallenge is a pending two-factor login. Remote-origin
// challenges retain the submitted password so the completing code can
// be replayed to the remote service; it never leaves process memory.
type loginChallenge struct {
	UserID    string
	Username  string
	Role      permission.Role
	IP        string
	UserAgent string
	Origin    challengeOrigin
	Password  string
	ExpiresAt time.Time
	Attempts  int
}

// challengeStore holds pending two-factor logins in memory. Expired
// entries are dropped on access and during a periodic sweep run by the
// engine; a challenge survives exactly until it is completed, fails
// too often, or times out.
type challengeStore struct {
	mu          sync.Mutex
	entries     map[string]*loginChallenge
	ttl         time.Duration
	maxAttempts int
}

func newChallengeStore(ttl time.Duration, maxAttempts int) *challengeStore {
	return &challengeStore{
		entries:     make(map[string]*loginChallenge),
		ttl:         ttl,
		maxAttempts: maxAttempts,
	}
}

func (s *challengeStore) Save(id string, c *loginChallenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ExpiresAt = time.Now().Add(s.ttl)
	s.entries[id] = c
}

// Get returns a copy of a live challenge. A missing or expired entry
// returns ErrChallengeInvalid / ErrChallengeExpired.
func (s *challengeStore) Get(id string) (loginChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.entries[id]
	if !ok {
		return loginChallenge{}, ErrChallengeInvalid
	}
	if time.Now().After(c.ExpiresAt) {
		delete(s.entries, id)
		return loginChallenge{}, ErrChallengeExpired
	}
	return *c, nil
}

func (s *challengeStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// RecordFailure bumps the attempt counter and reports whether the
// challenge was burned by reaching the attempt ceiling.
func (s *challengeStore) RecordFailure(id string) (exceeded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.entries[id]
	if !ok {
		return false, ErrChallengeInvalid
	}
	if time.Now().After(c.ExpiresAt) {
		delete(s.entries, id)
		return false, ErrChallengeExpired
	}
	c.Attempts++
	if c.Attempts >= s.maxAttempts {
		delete(s.entries, id)
		return true, nil
	}
	return false, nil
}

func (s *challengeStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.entries {
		if now.After(c.ExpiresAt) {
			delete(s.entries, id)
		}
	}
}

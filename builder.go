package authcore

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/auralis-app/authcore/journal"
	"github.com/auralis-app/authcore/password"
	"github.com/auralis-app/authcore/store"
)

// Builder assembles an Engine. Zero ambient defaults: everything the
// engine touches is wired here or derived from Config.
type Builder struct {
	cfg       Config
	cfgSet    bool
	store     *store.Store
	journal   *journal.Journal
	logger    zerolog.Logger
	loggerSet bool
}

// New starts a builder.
func New() *Builder {
	return &Builder{}
}

// WithConfig sets the engine configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	b.cfgSet = true
	return b
}

// WithStore supplies the credential store. Required; the caller owns
// its lifecycle.
func (b *Builder) WithStore(s *store.Store) *Builder {
	b.store = s
	return b
}

// WithJournal supplies an already-open audit journal. Without it,
// Build opens one from Config.Journal and owns its lifecycle.
func (b *Builder) WithJournal(j *journal.Journal) *Builder {
	b.journal = j
	return b
}

// WithLogger sets the diagnostic logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.logger = log
	b.loggerSet = true
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if !b.cfgSet {
		return nil, errors.New("authcore: config is required")
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("authcore: store is required")
	}
	log := zerolog.Nop()
	if b.loggerSet {
		log = b.logger
	}

	hasher, err := password.NewHasher(b.cfg.hasherConfig())
	if err != nil {
		return nil, err
	}
	tokens, err := newTokenManager(b.cfg.Session.SigningKey, b.cfg.Session.Issuer, b.cfg.Session.Timeout)
	if err != nil {
		return nil, err
	}
	secrets, err := newSecretBox(b.cfg.TOTP.SecretKey)
	if err != nil {
		return nil, err
	}

	jnl := b.journal
	ownsJournal := false
	if jnl == nil {
		jnl, err = journal.Open(b.cfg.journalConfig(), log)
		if err != nil {
			return nil, err
		}
		ownsJournal = true
	}

	return &Engine{
		config:      b.cfg,
		store:       b.store,
		journal:     jnl,
		hasher:      hasher,
		policy:      b.cfg.passwordPolicy(),
		totp:        newTOTPManager(b.cfg.TOTP),
		secrets:     secrets,
		tokens:      tokens,
		lockout:     newLockoutTracker(b.cfg.Lockout.Window, b.cfg.Lockout.MaxAttempts),
		challenges:  newChallengeStore(b.cfg.TOTP.ChallengeTTL, b.cfg.TOTP.ChallengeMaxAttempts),
		metrics:     NewMetrics(),
		log:         log.With().Str("component", "authcore").Logger(),
		ownsJournal: ownsJournal,
	}, nil
}

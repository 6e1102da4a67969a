package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/auralis-app/authcore/journal"
	"github.com/auralis-app/authcore/password"
)

// Config enumerates every recognized option with validated defaults.
// It replaces ad-hoc settings dictionaries: an unknown option is a
// compile error, a bad value fails Validate once at startup.
type Config struct {
	Password PasswordConfig
	Lockout  LockoutConfig
	Session  SessionConfig
	TOTP     TOTPConfig
	Journal  JournalConfig
	Remote   RemoteConfig
}

// PasswordConfig sets the credential policy and hashing cost.
type PasswordConfig struct {
	MinLength   int    `env:"AUTHCORE_PASSWORD_MIN_LENGTH, default=8"`
	MinClasses  int    `env:"AUTHCORE_PASSWORD_MIN_CLASSES, default=3"`
	Memory      uint32 `env:"AUTHCORE_ARGON2_MEMORY, default=65536"`
	Time        uint32 `env:"AUTHCORE_ARGON2_TIME, default=3"`
	HistorySize int    `env:"AUTHCORE_PASSWORD_HISTORY, default=3"`
}

// LockoutConfig bounds failed logins per username.
type LockoutConfig struct {
	MaxAttempts int           `env:"AUTHCORE_LOCKOUT_MAX_ATTEMPTS, default=5"`
	Window      time.Duration `env:"AUTHCORE_LOCKOUT_WINDOW, default=15m"`
}

// SessionConfig controls session lifetime and access-token minting.
type SessionConfig struct {
	Timeout    time.Duration `env:"AUTHCORE_SESSION_TIMEOUT, default=8h"`
	Issuer     string        `env:"AUTHCORE_TOKEN_ISSUER, default=authcore"`
	SigningKey []byte        `env:"AUTHCORE_TOKEN_KEY"`
}

// TOTPConfig controls one-time code generation, verification and the
// pending-login challenge window.
type TOTPConfig struct {
	Issuer               string        `env:"AUTHCORE_TOTP_ISSUER, default=Auralis"`
	Digits               int           `env:"AUTHCORE_TOTP_DIGITS, default=6"`
	Period               int           `env:"AUTHCORE_TOTP_PERIOD, default=30"`
	Skew                 int           `env:"AUTHCORE_TOTP_SKEW, default=1"`
	Algorithm            string        `env:"AUTHCORE_TOTP_ALGORITHM, default=SHA1"`
	SecretKey            []byte        `env:"AUTHCORE_TOTP_SECRET_KEY"`
	ChallengeTTL         time.Duration `env:"AUTHCORE_CHALLENGE_TTL, default=5m"`
	ChallengeMaxAttempts int           `env:"AUTHCORE_CHALLENGE_MAX_ATTEMPTS, default=3"`
}

// JournalConfig controls audit buffering, rotation and retention.
type JournalConfig struct {
	Dir            string `env:"AUTHCORE_JOURNAL_DIR, default=audit"`
	BufferSize     int    `env:"AUTHCORE_JOURNAL_BUFFER, default=256"`
	FlushThreshold int    `env:"AUTHCORE_JOURNAL_FLUSH_THRESHOLD, default=16"`
	MaxFileBytes   int64  `env:"AUTHCORE_JOURNAL_MAX_FILE_BYTES, default=5242880"`
	RetentionDays  int    `env:"AUTHCORE_JOURNAL_RETENTION_DAYS, default=90"`
	DropIfFull     bool   `env:"AUTHCORE_JOURNAL_DROP_IF_FULL, default=true"`
}

// RemoteConfig points the hybrid coordinator at the remote identity
// service. An empty BaseURL disables the remote backend entirely.
type RemoteConfig struct {
	BaseURL       string        `env:"AUTHCORE_REMOTE_URL"`
	Timeout       time.Duration `env:"AUTHCORE_REMOTE_TIMEOUT, default=5s"`
	ProbeInterval time.Duration `env:"AUTHCORE_REMOTE_PROBE_INTERVAL, default=30s"`
	ProbeBudget   time.Duration `env:"AUTHCORE_REMOTE_PROBE_BUDGET, default=10s"`
}

// DefaultConfig returns the configuration used when nothing is
// overridden. Signing and secret keys have no defaults; callers must
// supply them.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{MinLength: 8, MinClasses: 3, Memory: 64 * 1024, Time: 3, HistorySize: 3},
		Lockout:  LockoutConfig{MaxAttempts: 5, Window: 15 * time.Minute},
		Session:  SessionConfig{Timeout: 8 * time.Hour, Issuer: "authcore"},
		TOTP: TOTPConfig{
			Issuer: "Auralis", Digits: 6, Period: 30, Skew: 1, Algorithm: "SHA1",
			ChallengeTTL: 5 * time.Minute, ChallengeMaxAttempts: 3,
		},
		Journal: JournalConfig{
			Dir: "audit", BufferSize: 256, FlushThreshold: 16,
			MaxFileBytes: 5 << 20, RetentionDays: 90, DropIfFull: true,
		},
		Remote: RemoteConfig{Timeout: 5 * time.Second, ProbeInterval: 30 * time.Second, ProbeBudget: 10 * time.Second},
	}
}

// LoadConfig reads configuration from the environment on top of the
// defaults.
func LoadConfig(ctx context.Context) (Config, error) {
	cfg := Config{}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Validate checks the whole configuration once, before the engine is
// built.
func (c Config) Validate() error {
	if c.Password.MinLength < 1 {
		return errors.New("config: password min length must be positive")
	}
	if c.Password.MinClasses < 1 || c.Password.MinClasses > 4 {
		return errors.New("config: password min classes must be 1..4")
	}
	if c.Password.Memory == 0 || c.Password.Time == 0 {
		return errors.New("config: argon2 cost parameters must be positive")
	}
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("config: lockout max attempts must be positive")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("config: lockout window must be positive")
	}
	if c.Session.Timeout <= 0 {
		return errors.New("config: session timeout must be positive")
	}
	if len(c.Session.SigningKey) < 32 {
		return errors.New("config: token signing key must be at least 32 bytes")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("config: totp digits must be 6..8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("config: totp period must be at least 15s")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("config: totp skew must be 0..2")
	}
	switch c.TOTP.Algorithm {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return fmt.Errorf("config: unsupported totp algorithm %q", c.TOTP.Algorithm)
	}
	if len(c.TOTP.SecretKey) != 32 {
		return errors.New("config: totp secret key must be exactly 32 bytes")
	}
	if c.TOTP.ChallengeTTL <= 0 || c.TOTP.ChallengeMaxAttempts < 1 {
		return errors.New("config: challenge ttl and attempts must be positive")
	}
	if c.Journal.Dir == "" {
		return errors.New("config: journal directory required")
	}
	if c.Remote.BaseURL != "" && c.Remote.Timeout <= 0 {
		return errors.New("config: remote timeout must be positive")
	}
	return nil
}

func (c Config) passwordPolicy() password.Policy {
	return password.Policy{MinLength: c.Password.MinLength, MinClasses: c.Password.MinClasses}
}

func (c Config) hasherConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Memory = c.Password.Memory
	cfg.Time = c.Password.Time
	return cfg
}

func (c Config) journalConfig() journal.Config {
	return journal.Config{
		Dir:            c.Journal.Dir,
		BufferSize:     c.Journal.BufferSize,
		FlushThreshold: c.Journal.FlushThreshold,
		MaxFileBytes:   c.Journal.MaxFileBytes,
		RetentionDays:  c.Journal.RetentionDays,
		DropIfFull:     c.Journal.DropIfFull,
	}
}

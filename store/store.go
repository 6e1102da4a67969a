// Package store persists user accounts and sessions in an embedded
// SQLite database. It is the single durable credential source for the
// local authentication backend; callers own the mapping from storage
// failures to their error taxonomy.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/auralis-app/authcore/permission"
)

// ErrNotFound reports that no row matched the lookup key.
var ErrNotFound = errors.New("store: not found")

// User is a stored account record. PasswordHash carries the full PHC
// string; Salt duplicates the encoded salt for inspection tooling.
type User struct {
	ID               string
	Username         string
	PasswordHash     string
	Salt             string
	Role             permission.Role
	Active           bool
	TOTPEnabled      bool
	TOTPSecret       string
	BackupCodeHashes []string
	PasswordHistory  []string
	CreatedAt        time.Time
	LastLoginAt      time.Time
	TwoFactorSetupAt time.Time
}

// Session is a stored session record. AccessToken is minted on
// issuance and never written to disk; rows loaded from the database
// carry an empty token.
type Session struct {
	ID          string
	UserID      string
	Username    string
	Role        permission.Role
	IP          string
	UserAgent   string
	AccessToken string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LastSeen    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                  TEXT PRIMARY KEY,
	username            TEXT NOT NULL UNIQUE,
	password_hash       TEXT NOT NULL,
	salt                TEXT NOT NULL,
	role                TEXT NOT NULL,
	active              INTEGER NOT NULL DEFAULT 1,
	totp_enabled        INTEGER NOT NULL DEFAULT 0,
	totp_secret         TEXT,
	backup_codes        TEXT,
	password_history    TEXT,
	created_at          INTEGER NOT NULL,
	last_login_at       INTEGER,
	two_factor_setup_at INTEGER
);
-- sessions.user_id has no foreign key on purpose: guest sessions
-- reference an ephemeral principal with no users row. Cleanup of a
-- deleted user's sessions happens in DeleteUser instead.
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	username   TEXT NOT NULL,
	role       TEXT NOT NULL,
	ip         TEXT,
	user_agent TEXT,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	last_seen  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at);
`

// Store wraps an open SQLite handle. All methods are safe for
// concurrent use; SQLite serializes writers internally and the pool is
// capped at a single connection to avoid SQLITE_BUSY churn.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new account. A username collision surfaces as a
// constraint error from the driver.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	backup, history, err := encodeLists(u)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, salt, role, active,
			totp_enabled, totp_secret, backup_codes, password_history,
			created_at, last_login_at, two_factor_setup_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Salt, string(u.Role), boolInt(u.Active),
		boolInt(u.TOTPEnabled), nullStr(u.TOTPSecret), backup, history,
		u.CreatedAt.Unix(), nullTime(u.LastLoginAt), nullTime(u.TwoFactorSetupAt))
	if err != nil {
		return fmt.Errorf("store: create user %q: %w", u.Username, err)
	}
	return nil
}

// UserByName fetches an account by username.
func (s *Store) UserByName(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE username = ?`, username))
}

// UserByID fetches an account by ID.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id))
}

// UpdateUser rewrites every mutable column of an existing account.
func (s *Store) UpdateUser(ctx context.Context, u *User) error {
	backup, history, err := encodeLists(u)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = ?, password_hash = ?, salt = ?, role = ?,
			active = ?, totp_enabled = ?, totp_secret = ?, backup_codes = ?,
			password_history = ?, last_login_at = ?, two_factor_setup_at = ?
		WHERE id = ?`,
		u.Username, u.PasswordHash, u.Salt, string(u.Role),
		boolInt(u.Active), boolInt(u.TOTPEnabled), nullStr(u.TOTPSecret), backup,
		history, nullTime(u.LastLoginAt), nullTime(u.TwoFactorSetupAt), u.ID)
	if err != nil {
		return fmt.Errorf("store: update user %s: %w", u.ID, err)
	}
	return requireRow(res)
}

// DeleteUser removes an account and all of its sessions atomically.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete user: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete sessions of %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete user %s: %w", id, err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// ListUsers returns every account ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, userSelect+` ORDER BY created_at, username`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers reports the number of stored accounts.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count users: %w", err)
	}
	return n, nil
}

// PutSession inserts a session row.
func (s *Store) PutSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, username, role, ip, user_agent,
			created_at, expires_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Username, string(sess.Role), sess.IP,
		sess.UserAgent, sess.CreatedAt.Unix(), sess.ExpiresAt.Unix(), sess.LastSeen.Unix())
	if err != nil {
		return fmt.Errorf("store: put session: %w", err)
	}
	return nil
}

// SessionByID fetches a session row, expired or not.
func (s *Store) SessionByID(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, username, role, ip, user_agent, created_at, expires_at, last_seen
		FROM sessions WHERE id = ?`, id)
	sess := &Session{}
	var role string
	var created, expires, seen int64
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Username, &role, &sess.IP,
		&sess.UserAgent, &created, &expires, &seen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: session by id: %w", err)
	}
	sess.Role = permission.Role(role)
	sess.CreatedAt = time.Unix(created, 0).UTC()
	sess.ExpiresAt = time.Unix(expires, 0).UTC()
	sess.LastSeen = time.Unix(seen, 0).UTC()
	return sess, nil
}

// TouchSession advances the last-seen timestamp of a session.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen = ? WHERE id = ?`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("store: touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a single session. Missing rows are not an
// error; logout is idempotent.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions removes every session belonging to a user and
// reports how many were dropped.
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("store: delete sessions of %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PurgeExpiredSessions removes every session whose expiry is at or
// before now and reports how many were dropped.
func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("store: purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SessionCount reports the number of stored sessions, live or expired.
func (s *Store) SessionCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count sessions: %w", err)
	}
	return n, nil
}

const userSelect = `
	SELECT id, username, password_hash, salt, role, active, totp_enabled,
		totp_secret, backup_codes, password_history, created_at,
		last_login_at, two_factor_setup_at
	FROM users`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var role string
	var active, totpEnabled int
	var secret, backup, history sql.NullString
	var created int64
	var lastLogin, setupAt sql.NullInt64
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Salt, &role,
		&active, &totpEnabled, &secret, &backup, &history, &created,
		&lastLogin, &setupAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	u.Role = permission.Role(role)
	u.Active = active != 0
	u.TOTPEnabled = totpEnabled != 0
	u.TOTPSecret = secret.String
	u.CreatedAt = time.Unix(created, 0).UTC()
	if lastLogin.Valid {
		u.LastLoginAt = time.Unix(lastLogin.Int64, 0).UTC()
	}
	if setupAt.Valid {
		u.TwoFactorSetupAt = time.Unix(setupAt.Int64, 0).UTC()
	}
	if backup.Valid && backup.String != "" {
		if err := json.Unmarshal([]byte(backup.String), &u.BackupCodeHashes); err != nil {
			return nil, fmt.Errorf("store: decode backup codes of %s: %w", u.ID, err)
		}
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &u.PasswordHistory); err != nil {
			return nil, fmt.Errorf("store: decode password history of %s: %w", u.ID, err)
		}
	}
	return u, nil
}

func encodeLists(u *User) (backup, history sql.NullString, err error) {
	if len(u.BackupCodeHashes) > 0 {
		b, err := json.Marshal(u.BackupCodeHashes)
		if err != nil {
			return backup, history, fmt.Errorf("store: encode backup codes: %w", err)
		}
		backup = sql.NullString{String: string(b), Valid: true}
	}
	if len(u.PasswordHistory) > 0 {
		b, err := json.Marshal(u.PasswordHistory)
		if err != nil {
			return backup, history, fmt.Errorf("store: encode password history: %w", err)
		}
		history = sql.NullString{String: string(b), Valid: true}
	}
	return backup, history, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

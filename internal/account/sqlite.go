package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps user documents as validated JSON next to the columns
// needed for lookups and ordering.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			wallet TEXT NOT NULL DEFAULT '',
			treasures INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			doc TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS users_treasures_idx ON users(treasures DESC, created_at ASC);`,
		`CREATE INDEX IF NOT EXISTS users_wallet_idx ON users(wallet);`,
		`CREATE TABLE IF NOT EXISTS credentials (
			user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			password_hash BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS sessions_user_idx ON sessions(user_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// Create inserts u with its password hash.
func (s *SQLiteStore) Create(ctx context.Context, u User, passwordHash []byte) error {
	u.Email = normalizeEmail(u.Email)
	doc, err := encodeUser(u)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email = ?`, u.Email).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrEmailTaken
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users(id, email, wallet, treasures, created_at, doc) VALUES(?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, strings.ToLower(u.WalletAddress), int64(u.GameStats.TreasuresFound), fmtTime(u.CreatedAt), string(doc),
	); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrEmailTaken
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO credentials(user_id, password_hash) VALUES(?, ?)`, u.ID, passwordHash); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (User, error) {
	return s.queryUser(ctx, `SELECT doc FROM users WHERE id = ?`, id)
}

// FindByWallet returns the most recently created user linked to address.
func (s *SQLiteStore) FindByWallet(ctx context.Context, address string) (User, error) {
	if address == "" {
		return User{}, ErrNotFound
	}
	return s.queryUser(ctx, `SELECT doc FROM users WHERE wallet = ? ORDER BY created_at DESC LIMIT 1`, strings.ToLower(address))
}

// Credentials returns the user registered under email and its password hash.
func (s *SQLiteStore) Credentials(ctx context.Context, email string) (User, []byte, error) {
	var doc string
	var hash []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT u.doc, c.password_hash FROM users u JOIN credentials c ON c.user_id = u.id WHERE u.email = ?`,
		normalizeEmail(email),
	).Scan(&doc, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, nil, ErrNotFound
	}
	if err != nil {
		return User{}, nil, err
	}
	u, err := decodeUser([]byte(doc))
	return u, hash, err
}

func (s *SQLiteStore) UpdateWallet(ctx context.Context, id, address string) error {
	return s.update(ctx, id, func(u *User) { u.WalletAddress = address })
}

func (s *SQLiteStore) UpdateDisplayName(ctx context.Context, id, name string) error {
	return s.update(ctx, id, func(u *User) { u.DisplayName = name })
}

// UpdateGameStats merges p into the stored stats and stamps lastPlayed.
func (s *SQLiteStore) UpdateGameStats(ctx context.Context, id string, p StatsPatch, now time.Time) error {
	return s.update(ctx, id, func(u *User) { u.GameStats.apply(p, now) })
}

func (s *SQLiteStore) IncrementGamesPlayed(ctx context.Context, id string, now time.Time) error {
	return s.update(ctx, id, func(u *User) {
		n := u.GameStats.GamesPlayed + 1
		u.GameStats.apply(StatsPatch{GamesPlayed: &n}, now)
	})
}

// TopByTreasures lists up to n users by treasures found, ties broken by
// registration order.
func (s *SQLiteStore) TopByTreasures(ctx context.Context, n int) ([]User, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM users ORDER BY treasures DESC, created_at ASC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		u, err := decodeUser([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, token, userID string, now, expires time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(token, user_id, created_at, expires_at) VALUES(?, ?, ?, ?)`,
		token, userID, fmtTime(now), fmtTime(expires),
	)
	return err
}

// SessionUser resolves a live session token to its user id. Expired
// sessions are removed.
func (s *SQLiteStore) SessionUser(ctx context.Context, token string, now time.Time) (string, error) {
	var userID, expires string
	err := s.db.QueryRowContext(ctx, `SELECT user_id, expires_at FROM sessions WHERE token = ?`, token).Scan(&userID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	exp, err := time.Parse(timeLayout, expires)
	if err != nil {
		return "", fmt.Errorf("session expiry: %w", err)
	}
	if !now.Before(exp) {
		_ = s.DeleteSession(ctx, token)
		return "", ErrNotFound
	}
	return userID, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

func (s *SQLiteStore) queryUser(ctx context.Context, q string, args ...any) (User, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return decodeUser([]byte(doc))
}

// update is a read-modify-write of one document inside a transaction.
func (s *SQLiteStore) update(ctx context.Context, id string, fn func(*User)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM users WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	u, err := decodeUser([]byte(raw))
	if err != nil {
		return err
	}
	fn(&u)
	doc, err := encodeUser(u)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET wallet = ?, treasures = ?, doc = ? WHERE id = ?`,
		strings.ToLower(u.WalletAddress), int64(u.GameStats.TreasuresFound), string(doc), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

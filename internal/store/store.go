package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/apiodactyl/apiodactyl/internal/model"
)

// Config selects and tunes the database backing the key store.
type Config struct {
	Driver  string // sqlite (default), postgres, mysql or sqlserver
	DSN     string // ignored for sqlite, which lives in DataDir
	DataDir string // sqlite only; empty means in-memory
	Pool    PoolConfig
}

// Store persists API keys in a SQL database. It is the authoritative record
// of every key; callers are expected to cache lookups themselves.
type Store struct {
	db      *sqlx.DB
	dialect dialect
	driver  string
}

// Open connects to the configured database and applies migrations.
func Open(cfg Config) (*Store, error) {
	d, err := lookupDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	dsn := cfg.DSN
	if driver == "sqlite" {
		dsn, err = sqliteDSN(cfg.DataDir)
		if err != nil {
			return nil, err
		}
	} else if dsn == "" {
		return nil, fmt.Errorf("store driver %q requires a dsn", driver)
	}
	if d.prepareDSN != nil {
		if dsn, err = d.prepareDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Connect(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s key store: %w", driver, err)
	}

	if d.singleConn {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	} else {
		cfg.Pool.apply(db)
	}

	s := &Store{db: db, dialect: d, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate key store: %w", err)
	}
	return s, nil
}

// NewSQLiteStore opens a SQLite key store in dataDir. Pass empty string for
// in-memory.
func NewSQLiteStore(dataDir string) (*Store, error) {
	return Open(Config{Driver: "sqlite", DataDir: dataDir})
}

func sqliteDSN(dataDir string) (string, error) {
	if dataDir == "" {
		return ":memory:", nil
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return filepath.Join(dataDir, "apiodactyl.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the configured driver name.
func (s *Store) Driver() string { return s.driver }

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectKey = "SELECT id, key_hash, is_admin, created_at, last_used_at FROM api_keys"

// FindByHash looks up an API key by its SHA-256 hash.
func (s *Store) FindByHash(ctx context.Context, hash string) (model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, s.db.Rebind(selectKey+" WHERE key_hash = ?"), hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.APIKey{}, ErrNotFound
		}
		return model.APIKey{}, fmt.Errorf("get api key by hash: %w", err)
	}
	return key, nil
}

// FindByID looks up an API key by its ID.
func (s *Store) FindByID(ctx context.Context, id int64) (model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, s.db.Rebind(selectKey+" WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.APIKey{}, ErrNotFound
		}
		return model.APIKey{}, fmt.Errorf("get api key: %w", err)
	}
	return key, nil
}

// Insert stores a new key hash. The returned record carries the assigned ID
// and creation time.
func (s *Store) Insert(ctx context.Context, hash string, isAdmin bool) (model.APIKey, error) {
	key := model.APIKey{
		KeyHash:   hash,
		IsAdmin:   isAdmin,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	const q = "INSERT INTO api_keys (key_hash, is_admin, created_at)"

	switch s.dialect.insertID {
	case idReturning, idOutput:
		stmt := q + " VALUES (?, ?, ?) RETURNING id"
		if s.dialect.insertID == idOutput {
			stmt = q + " OUTPUT INSERTED.id VALUES (?, ?, ?)"
		}
		row := s.db.QueryRowxContext(ctx, s.db.Rebind(stmt), key.KeyHash, key.IsAdmin, key.CreatedAt)
		if err := row.Scan(&key.ID); err != nil {
			return model.APIKey{}, s.insertError(err)
		}
		return key, nil
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(q+" VALUES (?, ?, ?)"), key.KeyHash, key.IsAdmin, key.CreatedAt)
	if err != nil {
		return model.APIKey{}, s.insertError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.APIKey{}, fmt.Errorf("get api key id: %w", err)
	}
	key.ID = id
	return key, nil
}

func (s *Store) insertError(err error) error {
	if s.dialect.isDuplicate(err) {
		return ErrDuplicate
	}
	return fmt.Errorf("insert api key: %w", err)
}

// DeleteByHash removes the key with the given hash and reports how many rows
// were deleted.
func (s *Store) DeleteByHash(ctx context.Context, hash string) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM api_keys WHERE key_hash = ?"), hash)
	if err != nil {
		return 0, fmt.Errorf("delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete api key rows affected: %w", err)
	}
	return n, nil
}

// UpdateLastUsed sets the last_used_at timestamp for an API key.
func (s *Store) UpdateLastUsed(ctx context.Context, id int64) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_keys SET last_used_at = ? WHERE id = ?"), now, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key last used rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAdmin changes the privilege flag of a key and returns the updated record.
func (s *Store) SetAdmin(ctx context.Context, id int64, isAdmin bool) (model.APIKey, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_keys SET is_admin = ? WHERE id = ?"), isAdmin, id)
	if err != nil {
		return model.APIKey{}, fmt.Errorf("update api key admin flag: %w", err)
	}
	// MySQL reports zero affected rows when the value is unchanged, so
	// existence is decided by the follow-up read instead.
	if _, err := result.RowsAffected(); err != nil {
		return model.APIKey{}, fmt.Errorf("update api key rows affected: %w", err)
	}
	return s.FindByID(ctx, id)
}

// ListAll returns every stored API key ordered by ID.
func (s *Store) ListAll(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, selectKey+" ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// HasAdmin reports whether at least one admin key exists. This is used for
// first-run detection by the admin bootstrap.
func (s *Store) HasAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind("SELECT COUNT(*) FROM api_keys WHERE is_admin = ?"), true); err != nil {
		return false, fmt.Errorf("count admin keys: %w", err)
	}
	return count > 0, nil
}

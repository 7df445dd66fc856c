package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	mssql "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// idStrategy is how a dialect reports the id assigned by an INSERT.
type idStrategy int

const (
	idLastInsert idStrategy = iota // sql.Result.LastInsertId
	idReturning                    // INSERT ... RETURNING id
	idOutput                       // INSERT ... OUTPUT INSERTED.id VALUES ...
)

// dialect captures everything that differs between the supported key store
// databases. Queries are written with ? placeholders and rebound by sqlx.
type dialect struct {
	// driverName is the database/sql driver registered by the driver package.
	driverName string
	insertID   idStrategy
	// singleConn limits the pool to one connection (SQLite writes).
	singleConn  bool
	migrations  []string
	isDuplicate func(error) bool
	prepareDSN  func(dsn string) (string, error)
}

var dialects = map[string]dialect{
	"sqlite": {
		driverName: "sqlite",
		singleConn: true,
		migrations: []string{
			`CREATE TABLE IF NOT EXISTS api_keys (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				key_hash TEXT UNIQUE NOT NULL,
				is_admin INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				last_used_at DATETIME
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_is_admin ON api_keys(is_admin)`,
		},
		isDuplicate: func(err error) bool {
			return strings.Contains(err.Error(), "UNIQUE constraint failed")
		},
	},
	"postgres": {
		driverName: "pgx",
		insertID:   idReturning,
		migrations: []string{
			`CREATE TABLE IF NOT EXISTS api_keys (
				id SERIAL PRIMARY KEY,
				key_hash VARCHAR(64) UNIQUE NOT NULL,
				is_admin BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				last_used_at TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_is_admin ON api_keys(is_admin)`,
		},
		isDuplicate: func(err error) bool {
			var pgErr *pgconn.PgError
			return errors.As(err, &pgErr) && pgErr.Code == "23505"
		},
	},
	"mysql": {
		driverName: "mysql",
		migrations: []string{
			`CREATE TABLE IF NOT EXISTS api_keys (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				key_hash VARCHAR(64) NOT NULL UNIQUE,
				is_admin BOOLEAN NOT NULL DEFAULT FALSE,
				created_at DATETIME(6) NOT NULL,
				last_used_at DATETIME(6) NULL
			)`,
			// MySQL has no CREATE INDEX IF NOT EXISTS; a rerun reports a
			// duplicate key name which migrate treats as applied.
			`CREATE INDEX idx_api_keys_is_admin ON api_keys(is_admin)`,
		},
		isDuplicate: func(err error) bool {
			var myErr *mysql.MySQLError
			return errors.As(err, &myErr) && myErr.Number == 1062
		},
		prepareDSN: func(dsn string) (string, error) {
			// Timestamps are scanned into time.Time, which requires parseTime.
			cfg, err := mysql.ParseDSN(dsn)
			if err != nil {
				return "", fmt.Errorf("parse mysql dsn: %w", err)
			}
			cfg.ParseTime = true
			return cfg.FormatDSN(), nil
		},
	},
	"sqlserver": {
		driverName: "sqlserver",
		insertID:   idOutput,
		migrations: []string{
			`IF OBJECT_ID(N'api_keys', N'U') IS NULL
			CREATE TABLE api_keys (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				key_hash VARCHAR(64) NOT NULL UNIQUE,
				is_admin BIT NOT NULL DEFAULT 0,
				created_at DATETIME2 NOT NULL,
				last_used_at DATETIME2 NULL
			)`,
			`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'idx_api_keys_is_admin')
			CREATE INDEX idx_api_keys_is_admin ON api_keys(is_admin)`,
		},
		isDuplicate: func(err error) bool {
			// 2627: unique constraint, 2601: unique index.
			var msErr mssql.Error
			return errors.As(err, &msErr) && (msErr.Number == 2627 || msErr.Number == 2601)
		},
	},
}

// Drivers returns the names of the supported key store databases.
func Drivers() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDialect(name string) (dialect, error) {
	if name == "" {
		name = "sqlite"
	}
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported store driver %q (supported: %s)", name, strings.Join(Drivers(), ", "))
	}
	return d, nil
}

// Package sqlite persists identity state in a single SQLite file. One file
// backs users, admins, bans, and the audit log so a command and its audit
// event share the same transaction and visibility boundaries.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/silvermint/idserver/internal/storage"
)

// toMicros normalizes timestamps into microsecond precision for storage.
func toMicros(value time.Time) int64 {
	return value.UTC().UnixMicro()
}

// fromMicros restores microsecond precision and keeps UTC normalization.
func fromMicros(value int64) time.Time {
	return time.UnixMicro(value).UTC()
}

// Store implements identity persistence over SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the identity SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Ping reports whether the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Begin opens one request-scoped transaction.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &tx{sq: sqlTx}, nil
}

type tx struct {
	sq *sql.Tx
}

func (t *tx) Users() storage.UserQueries   { return userQueries{sq: t.sq} }
func (t *tx) Admins() storage.AdminQueries { return adminQueries{sq: t.sq} }
func (t *tx) Bans() storage.BanQueries     { return banQueries{sq: t.sq} }
func (t *tx) Audit() storage.AuditQueries  { return auditQueries{sq: t.sq} }

func (t *tx) Commit() error {
	return t.sq.Commit()
}

// Rollback after Commit is a no-op so callers can always defer it.
func (t *tx) Rollback() error {
	if err := t.sq.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

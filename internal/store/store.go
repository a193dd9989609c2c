// Package store persists normalized daily biometrics in SQLite. One row per
// day per signal; a day is always written in a single transaction so readers
// never observe a half-synced day.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bernardmuller/pulse/internal/log"
)

const (
	driverName  = "sqlite"
	dbFileName  = "pulse.db"
	busyTimeout = 5000 // milliseconds
)

var ErrNotFound = errors.New("store: no record for day")

// Store is the local biometrics database.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (or opens) the database under dataDir and applies the schema.
// WAL journaling keeps concurrent CLI and API reads cheap.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	path := filepath.Join(dataDir, dbFileName)

	dsn := fmt.Sprintf("file:%s?%s", url.PathEscape(path),
		"_pragma=journal_mode(WAL)"+
			fmt.Sprintf("&_pragma=busy_timeout(%d)", busyTimeout)+
			"&_pragma=synchronous(NORMAL)"+
			"&_pragma=foreign_keys(ON)")

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// modernc sqlite is an in-process library; a single writer connection
	// avoids SQLITE_BUSY churn under WAL.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger := log.WithComponent("store")
	logger.Debug().Str(log.FieldPath, path).Msg("database opened")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Ping verifies the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// VerifyIntegrity runs SQLite's own consistency check. Any answer other than
// "ok" means the file is damaged.
func (s *Store) VerifyIntegrity(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("store: integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("store: integrity check failed: %s", result)
	}
	return nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

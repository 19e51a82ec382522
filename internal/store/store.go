// Package store persists Bridge Story drafts, published projects and user
// roles in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"bridgefund/internal/logging"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Drivers accepted by Open.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, cgo
)

// Store is the document store backing the pipeline endpoints.
type Store struct {
	db     *sql.DB
	driver string
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the database at path using the named driver.
func Open(driver, path string) (*Store, error) {
	if driver == "" {
		driver = DriverModernc
	}
	dsn, err := buildDSN(driver, path)
	if err != nil {
		return nil, err
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, driver: driver, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("opened %s database at %s", driver, path)
	return s, nil
}

func buildDSN(driver, path string) (string, error) {
	switch driver {
	case DriverModernc:
		return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
	case DriverMattn:
		return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1", nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		summary TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		bundle_json TEXT,
		routine_stage TEXT NOT NULL DEFAULT '',
		routine_complete INTEGER NOT NULL DEFAULT 0,
		sources_json TEXT,
		tone_json TEXT,
		emphasis TEXT NOT NULL DEFAULT '',
		to_verify_json TEXT,
		supporter_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
	CREATE INDEX IF NOT EXISTS idx_projects_updated ON projects(updated_at);

	-- Append-only snapshots taken before each versioned draft merge
	CREATE TABLE IF NOT EXISTS project_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL REFERENCES projects(id),
		version INTEGER NOT NULL,
		snapshot_json TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_project ON project_history(project_id);

	CREATE TABLE IF NOT EXISTS project_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL REFERENCES projects(id),
		url TEXT NOT NULL,
		display_order INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_images_project ON project_images(project_id, display_order);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL DEFAULT 'member',
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

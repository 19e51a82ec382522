package store

import (
	"database/sql"
	"fmt"

	"bridgefund/internal/logging"
)

// Migration adds one column to a table created by an older release.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists columns added after the first projects schema.
// CREATE TABLE IF NOT EXISTS leaves old tables untouched, so these fill the gap.
var pendingMigrations = []Migration{
	// Ownership and routine tracking
	{"projects", "owner_id", "TEXT NOT NULL DEFAULT ''"},
	{"projects", "routine_stage", "TEXT NOT NULL DEFAULT ''"},
	{"projects", "routine_complete", "INTEGER NOT NULL DEFAULT 0"},
	// Tone dial and research output
	{"projects", "emphasis", "TEXT NOT NULL DEFAULT ''"},
	{"projects", "sources_json", "TEXT"},
	{"projects", "tone_json", "TEXT"},
	{"projects", "to_verify_json", "TEXT"},
	{"projects", "supporter_count", "INTEGER NOT NULL DEFAULT 0"},
}

// runMigrations applies pendingMigrations. It returns how many columns
// were added.
func runMigrations(db *sql.DB) (int, error) {
	applied := 0
	for _, m := range pendingMigrations {
		exists, err := tableExists(db, m.Table)
		if err != nil {
			return applied, err
		}
		if !exists {
			continue
		}

		has, err := columnExists(db, m.Table, m.Column)
		if err != nil {
			return applied, err
		}
		if has {
			continue
		}

		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			return applied, fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		logging.Store("migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}
	return applied, nil
}

// columnExists checks for a column using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info(%s) failed: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func tableExists(db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("table check for %s failed: %w", table, err)
	}
	return count > 0, nil
}

package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			fiscal_code TEXT PRIMARY KEY,
			id_istat TEXT NOT NULL DEFAULT '',
			id_catasto TEXT NOT NULL DEFAULT '',
			id_cbill TEXT NOT NULL DEFAULT '',
			pec_email TEXT NOT NULL DEFAULT '',
			referent_email TEXT NOT NULL DEFAULT '',
			referent_name TEXT NOT NULL DEFAULT '',
			company_name TEXT NOT NULL DEFAULT '',
			iban TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_organizations_istat ON organizations(id_istat)`,
		`CREATE INDEX IF NOT EXISTS idx_organizations_catasto ON organizations(id_catasto)`,

		`CREATE TABLE IF NOT EXISTS debt_positions (
			batch_file TEXT NOT NULL,
			row_id TEXT NOT NULL,
			status TEXT NOT NULL,
			pa_id_istat TEXT NOT NULL DEFAULT '',
			pa_id_catasto TEXT NOT NULL DEFAULT '',
			pa_id_fiscal_code TEXT NOT NULL DEFAULT '',
			pa_id_cbill TEXT NOT NULL DEFAULT '',
			pa_pec_email TEXT NOT NULL DEFAULT '',
			pa_referent_email TEXT NOT NULL DEFAULT '',
			pa_referent_name TEXT NOT NULL DEFAULT '',
			amount INTEGER NOT NULL,
			debtor_fiscal_code TEXT NOT NULL,
			debtor_name TEXT NOT NULL,
			debtor_email TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			iuv TEXT NOT NULL DEFAULT '',
			iupd TEXT NOT NULL DEFAULT '',
			company_name TEXT NOT NULL DEFAULT '',
			iban TEXT NOT NULL DEFAULT '',
			inserted_at DATETIME NOT NULL,
			PRIMARY KEY (batch_file, row_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_debt_positions_status ON debt_positions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_debt_positions_batch ON debt_positions(batch_file)`,

		// The linearizable arbiter of IUV uniqueness: the primary key makes
		// insert-if-absent atomic per (organization, iuv) pair.
		`CREATE TABLE IF NOT EXISTS iuv_registry (
			org_fiscal_code TEXT NOT NULL,
			iuv TEXT NOT NULL,
			reserved_at DATETIME NOT NULL,
			PRIMARY KEY (org_fiscal_code, iuv)
		)`,

		`CREATE TABLE IF NOT EXISTS work_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			body TEXT NOT NULL,
			visible_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			enqueued_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_work_queue_visible ON work_queue(visible_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}

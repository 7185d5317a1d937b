package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_skip_events_table",
		Up:      migration002AddSkipEventsTable,
	},
	{
		Version: 3,
		Name:    "add_model_weights_table",
		Up:      migration003AddModelWeightsTable,
	},
	{
		Version: 4,
		Name:    "add_merchant_aliases_table",
		Up:      migration004AddMerchantAliasesTable,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	// Ensure migrations table exists
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	// Run pending migrations
	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue // Already applied
		}

		s.logger.Info("running migration", "version", migration.Version, "name", migration.Name)

		// Run migration in transaction
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		// Execute migration
		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		// Record migration
		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		// Commit
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// ================================================================
// MIGRATION FUNCTIONS
// ================================================================

// migration001InitialSchema creates statements, receipts and charges.
// Amounts are decimal strings; dates are UTC timestamps.
func migration001InitialSchema(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS statements (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			start_date TIMESTAMP NOT NULL,
			end_date TIMESTAMP NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS receipts (
			id TEXT PRIMARY KEY,
			merchant TEXT,
			amount TEXT,
			receipt_date TIMESTAMP,
			category TEXT,
			is_matched BOOLEAN NOT NULL DEFAULT 0,
			matched_charge_id TEXT,
			matched_at TIMESTAMP,
			statement_id TEXT REFERENCES statements(id) ON DELETE SET NULL,
			original_filename TEXT NOT NULL DEFAULT '',
			storage_path TEXT NOT NULL DEFAULT '',
			organized_path TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			needs_review BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS charges (
			id TEXT PRIMARY KEY,
			charge_date TIMESTAMP NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			is_matched BOOLEAN NOT NULL DEFAULT 0,
			receipt_id TEXT,
			statement_id TEXT NOT NULL DEFAULT '',
			is_personal BOOLEAN NOT NULL DEFAULT 0,
			no_receipt_required BOOLEAN NOT NULL DEFAULT 0,
			is_non_amex BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_receipts_statement
		 ON receipts(statement_id)`,

		`CREATE INDEX IF NOT EXISTS idx_receipts_matched_at
		 ON receipts(matched_at)`,

		`CREATE INDEX IF NOT EXISTS idx_charges_statement
		 ON charges(statement_id)`,

		`CREATE INDEX IF NOT EXISTS idx_charges_unmatched
		 ON charges(is_matched, is_personal, no_receipt_required)`,
	})
}

// migration002AddSkipEventsTable creates the append-only skip ledger
func migration002AddSkipEventsTable(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS skip_events (
			id TEXT PRIMARY KEY,
			receipt_id TEXT NOT NULL,
			charge_id TEXT NOT NULL,
			features_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_skip_events_created
		 ON skip_events(created_at DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_skip_events_pair
		 ON skip_events(receipt_id, charge_id)`,
	})
}

// migration003AddModelWeightsTable stores each trained weight set as a new version
func migration003AddModelWeightsTable(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS model_weights (
			version INTEGER PRIMARY KEY,
			amount REAL NOT NULL,
			date REAL NOT NULL,
			merchant REAL NOT NULL,
			category REAL NOT NULL,
			bias REAL NOT NULL,
			sample_count INTEGER NOT NULL DEFAULT 0,
			trained_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	})
}

// migration004AddMerchantAliasesTable persists aliases added at runtime
func migration004AddMerchantAliasesTable(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS merchant_aliases (
			pattern TEXT NOT NULL,
			is_regex BOOLEAN NOT NULL DEFAULT 0,
			canonical TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (pattern, is_regex)
		)`,
	})
}

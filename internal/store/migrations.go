package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// migration is one schema version. Statements run in order inside a single
// transaction; the version is recorded in schema_migrations on success.
type migration struct {
	version    int
	name       string
	statements []string
}

// migrations lists every schema version in order. The split mirrors how the
// table actually evolved: the base table first, then columns bolted on by
// later pipeline iterations. New columns must use ADD COLUMN IF NOT EXISTS so
// databases created before the migration table existed still converge.
func migrations() []migration {
	return []migration{
		{
			version: 1,
			name:    "create recalls table",
			statements: []string{`
				CREATE TABLE IF NOT EXISTS recalls (
					recall_number VARCHAR NOT NULL,
					product_type VARCHAR NOT NULL,
					classification VARCHAR,
					status VARCHAR,
					recalling_firm VARCHAR,
					city VARCHAR,
					state VARCHAR,
					country VARCHAR,
					distribution_pattern VARCHAR,
					product_description VARCHAR,
					product_quantity VARCHAR,
					reason_for_recall VARCHAR,
					code_info VARCHAR,
					voluntary_mandated VARCHAR,
					initial_firm_notification VARCHAR,
					event_id VARCHAR,
					recall_initiation_date DATE,
					report_date DATE
				)`,
			},
		},
		{
			version: 2,
			name:    "add termination and extended code info",
			statements: []string{
				`ALTER TABLE recalls ADD COLUMN IF NOT EXISTS termination_date DATE`,
				`ALTER TABLE recalls ADD COLUMN IF NOT EXISTS more_code_info VARCHAR`,
			},
		},
		{
			version: 3,
			name:    "add ingest provenance",
			statements: []string{
				`ALTER TABLE recalls ADD COLUMN IF NOT EXISTS ingested_at TIMESTAMP`,
				`ALTER TABLE recalls ADD COLUMN IF NOT EXISTS run_id VARCHAR`,
			},
		},
	}
}

// migrate applies all pending migrations.
func (db *DuckDB) migrate(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR NOT NULL,
			applied_at TIMESTAMP DEFAULT current_timestamp
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations() {
		if _, ok := applied[m.version]; ok {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return err
		}
		db.logger.Info("applied schema migration",
			zap.Int("version", m.version),
			zap.String("name", m.name),
		)
	}
	return nil
}

func (db *DuckDB) appliedVersions(ctx context.Context) (map[int]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	applied := make(map[int]struct{})
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}

func (db *DuckDB) apply(ctx context.Context, m migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}

package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// ledgerVersion changes whenever schema.sql does. Databases written by another
// version are refused rather than migrated.
const ledgerVersion = 1

// initSchema creates the tables on an empty database and otherwise checks the
// recorded version, all inside one transaction.
func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version, err := recordedVersion(ctx, tx)
	switch {
	case err != nil:
		return err
	case version == ledgerVersion:
		return nil
	case version != 0:
		return fmt.Errorf("%w: %s has version %d, this build expects %d (move it aside to start a fresh ledger)",
			ErrSchemaMismatch, s.path, version, ledgerVersion)
	}

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", ledgerVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// recordedVersion returns 0 for a database without a schema_version table.
func recordedVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var name string
	err := tx.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inspect schema: %w", err)
	}
	var version int
	if err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

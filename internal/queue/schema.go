package queue

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// ensureSchema brings the database up to date. Each schema/*.sql file is one
// versioned step, applied in lexical order inside a single transaction and
// recorded in schema_migrations so reopening an existing database skips it.
func (s *Store) ensureSchema(ctx context.Context) error {
	steps, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return fmt.Errorf("list schema steps: %w", err)
	}
	sort.Strings(steps)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, step := range steps {
		version := strings.TrimSuffix(path.Base(step), ".sql")
		applied, err := schemaStepApplied(ctx, tx, version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		ddl, err := schemaFS.ReadFile(step)
		if err != nil {
			return fmt.Errorf("read schema step %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, string(ddl)); err != nil {
			return fmt.Errorf("apply schema step %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record schema step %s: %w", version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func schemaStepApplied(ctx context.Context, tx *sql.Tx, version string) (bool, error) {
	var count int
	row := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check schema step %s: %w", version, err)
	}
	return count > 0, nil
}

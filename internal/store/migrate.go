package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

type migrationFile struct {
	version int
	name    string
	sql     string
}

// migrateUp applies pending migrations in filename order, one transaction
// each. A database written by a newer build, with migrations this build does
// not know, is refused.
func migrateUp(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER NOT NULL PRIMARY KEY,
			name        TEXT    NOT NULL,
			applied_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return fmt.Errorf("migrate: ensure migrations table: %w", err)
	}

	files, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("migrate: load files: %w", err)
	}

	for _, f := range files {
		var n int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f.version).Scan(&n); err != nil {
			return fmt.Errorf("migrate: check applied %d: %w", f.version, err)
		}
		if n > 0 {
			continue
		}
		if err := apply(ctx, db, f); err != nil {
			return fmt.Errorf("migrate: apply %s: %w", f.name, err)
		}
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: read schema version: %w", err)
	}
	if known := files[len(files)-1].version; current > known {
		return fmt.Errorf("migrate: schema version %d is newer than supported version %d", current, known)
	}
	return nil
}

// schemaVersion returns the highest applied migration, or 0.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

func loadMigrations() ([]migrationFile, error) {
	var files []migrationFile
	err := fs.WalkDir(migrations, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return nil
		}
		content, err := migrations.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var version int
		if _, err := fmt.Sscanf(d.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("migration %s: missing version prefix", d.Name())
		}
		files = append(files, migrationFile{version: version, name: d.Name(), sql: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func apply(ctx context.Context, db *sql.DB, f migrationFile) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, f.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", f.version, f.name); err != nil {
		return err
	}
	return tx.Commit()
}

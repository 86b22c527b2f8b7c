package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// MigrationStatus describes one migration file relative to the database.
type MigrationStatus struct {
	Version   string
	Applied   bool
	AppliedAt *time.Time
	// Drifted is set when the file on disk no longer matches the checksum
	// recorded when it was applied.
	Drifted bool
}

// RunMigrations executes unapplied SQL migration files from the provided filesystems in order.
// Files from all filesystems are merged and sorted by name. Each file runs in its own
// transaction together with its schema_migrations row, so a failing file leaves no trace
// and later files are not attempted.
func (db *DB) RunMigrations(ctx context.Context, migrationsFS ...fs.FS) (applied []string, err error) {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	done, err := db.loadAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: load applied migrations: %w", err)
	}

	files, err := collectMigrations(migrationsFS)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if _, ok := done[f.name]; ok {
			db.logger.Debug("migration already applied, skipping", "file", f.name)
			continue
		}

		db.logger.Info("running migration", "file", f.name)
		err := db.InTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, f.sql); err != nil {
				return fmt.Errorf("storage: execute migration %s: %w", f.name, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)`, f.name, f.checksum,
			); err != nil {
				return fmt.Errorf("storage: record migration %s: %w", f.name, err)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}
		applied = append(applied, f.name)
	}

	return applied, nil
}

// MigrationStatus lists every migration file with its applied state, followed by
// any recorded versions that no longer have a file.
func (db *DB) MigrationStatus(ctx context.Context, migrationsFS ...fs.FS) ([]MigrationStatus, error) {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	done, err := db.loadAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: load applied migrations: %w", err)
	}
	files, err := collectMigrations(migrationsFS)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.name] = true
		st := MigrationStatus{Version: f.name}
		if rec, ok := done[f.name]; ok {
			at := rec.appliedAt
			st.Applied = true
			st.AppliedAt = &at
			st.Drifted = rec.checksum != "" && rec.checksum != f.checksum
		}
		out = append(out, st)
	}

	var orphans []string
	for v := range done {
		if !seen[v] {
			orphans = append(orphans, v)
		}
	}
	sort.Strings(orphans)
	for _, v := range orphans {
		at := done[v].appliedAt
		out = append(out, MigrationStatus{Version: v, Applied: true, AppliedAt: &at})
	}
	return out, nil
}

func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}
	// Databases migrated before checksums were tracked lack the column.
	if _, err := db.pool.Exec(ctx,
		`ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`,
	); err != nil {
		return fmt.Errorf("storage: upgrade schema_migrations: %w", err)
	}
	return nil
}

type appliedMigration struct {
	checksum  string
	appliedAt time.Time
}

// loadAppliedMigrations returns the migrations already recorded in schema_migrations.
func (db *DB) loadAppliedMigrations(ctx context.Context) (map[string]appliedMigration, error) {
	rows, err := db.pool.Query(ctx, `SELECT version, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]appliedMigration)
	for rows.Next() {
		var v string
		var m appliedMigration
		if err := rows.Scan(&v, &m.checksum, &m.appliedAt); err != nil {
			return nil, err
		}
		applied[v] = m
	}
	return applied, rows.Err()
}

type migrationFile struct {
	name     string
	sql      string
	checksum string
}

func collectMigrations(filesystems []fs.FS) ([]migrationFile, error) {
	var files []migrationFile
	seen := make(map[string]bool)
	for _, fsys := range filesystems {
		entries, err := fs.ReadDir(fsys, ".")
		if err != nil {
			return nil, fmt.Errorf("storage: read migrations dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
				continue
			}
			name := entry.Name()
			if seen[name] {
				return nil, fmt.Errorf("storage: duplicate migration %s", name)
			}
			seen[name] = true
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				return nil, fmt.Errorf("storage: read migration %s: %w", name, err)
			}
			sum := sha256.Sum256(content)
			files = append(files, migrationFile{
				name:     name,
				sql:      string(content),
				checksum: hex.EncodeToString(sum[:]),
			})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

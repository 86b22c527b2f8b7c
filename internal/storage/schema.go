package storage

import (
	"context"
	"fmt"
)

// TableInfo is one user table with the planner's row estimate.
type TableInfo struct {
	Name          string `json:"name"`
	EstimatedRows int64  `json:"estimated_rows"`
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name     string  `json:"name"`
	DataType string  `json:"data_type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
}

// ListTables returns the tables of the public schema.
func (db *DB) ListTables(ctx context.Context) ([]TableInfo, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT c.relname, GREATEST(c.reltuples, 0)::bigint
		 FROM pg_class c
		 JOIN pg_namespace n ON n.oid = c.relnamespace
		 WHERE n.nspname = 'public' AND c.relkind IN ('r', 'p')
		 ORDER BY c.relname`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list tables: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name, &t.EstimatedRows); err != nil {
			return nil, fmt.Errorf("storage: scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListColumns returns the columns of table in ordinal order, or ErrNotFound
// when the table does not exist.
func (db *DB) ListColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT column_name, data_type, is_nullable = 'YES', column_default
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`, table,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list columns: %w", err)
	}
	defer rows.Close()

	var out []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.Default); err != nil {
			return nil, fmt.Errorf("storage: scan column: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list columns: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("storage: table %s: %w", table, ErrNotFound)
	}
	return out, nil
}

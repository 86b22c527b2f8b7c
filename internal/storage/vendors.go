package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arrowlimo/alms/internal/model"
)

// VendorCounts returns each distinct raw receipt vendor name with its usage count.
func (db *DB) VendorCounts(ctx context.Context) ([]model.VendorCount, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT vendor_name, count(*) FROM receipts
		 WHERE vendor_name <> ''
		 GROUP BY vendor_name ORDER BY vendor_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query vendor counts: %w", err)
	}
	defer rows.Close()

	var out []model.VendorCount
	for rows.Next() {
		var v model.VendorCount
		if err := rows.Scan(&v.Name, &v.Count); err != nil {
			return nil, fmt.Errorf("storage: scan vendor count: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ApplyVendorAliases upserts aliases and rewrites receipts.canonical_vendor for
// every receipt whose raw vendor name has an alias. Returns the number of
// receipts changed.
func (db *DB) ApplyVendorAliases(ctx context.Context, actor string, aliases []model.VendorAlias) (int64, error) {
	var updated int64
	err := db.InTx(ctx, func(tx pgx.Tx) error {
		for _, a := range aliases {
			if _, err := tx.Exec(ctx,
				`INSERT INTO vendor_aliases (alias, canonical) VALUES ($1, $2)
				 ON CONFLICT (alias) DO UPDATE SET canonical = EXCLUDED.canonical`,
				a.Alias, a.Canonical,
			); err != nil {
				return fmt.Errorf("storage: upsert vendor alias: %w", err)
			}
		}
		tag, err := tx.Exec(ctx,
			`UPDATE receipts r SET canonical_vendor = a.canonical
			 FROM vendor_aliases a
			 WHERE a.alias = r.vendor_name AND r.canonical_vendor IS DISTINCT FROM a.canonical`,
		)
		if err != nil {
			return fmt.Errorf("storage: apply vendor aliases: %w", err)
		}
		updated = tag.RowsAffected()
		return InsertMutationAuditTx(ctx, tx, MutationAuditEntry{
			Actor:        actor,
			Operation:    "normalize_vendors",
			ResourceType: "vendor_aliases",
			ResourceID:   "*",
			AfterData:    map[string]any{"aliases": len(aliases), "receipts_updated": updated},
		})
	})
	return updated, err
}

// VendorAliases lists stored aliases ordered by canonical name.
func (db *DB) VendorAliases(ctx context.Context) ([]model.VendorAlias, error) {
	rows, err := db.pool.Query(ctx, `SELECT alias, canonical FROM vendor_aliases ORDER BY canonical, alias`)
	if err != nil {
		return nil, fmt.Errorf("storage: query vendor aliases: %w", err)
	}
	defer rows.Close()

	var out []model.VendorAlias
	for rows.Next() {
		var a model.VendorAlias
		if err := rows.Scan(&a.Alias, &a.Canonical); err != nil {
			return nil, fmt.Errorf("storage: scan vendor alias: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

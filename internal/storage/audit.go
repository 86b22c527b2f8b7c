package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MutationAuditEntry is an append-only record of one data correction.
type MutationAuditEntry struct {
	RunID        *uuid.UUID
	Actor        string
	Operation    string
	ResourceType string
	ResourceID   string
	BeforeData   any
	AfterData    any
}

// InsertMutationAudit appends a mutation audit event outside any transaction.
func (db *DB) InsertMutationAudit(ctx context.Context, e MutationAuditEntry) error {
	return db.InTx(ctx, func(tx pgx.Tx) error {
		return InsertMutationAuditTx(ctx, tx, e)
	})
}

// InsertMutationAuditTx appends a mutation audit event inside tx, so the audit row
// commits or rolls back with the change it describes.
func InsertMutationAuditTx(ctx context.Context, tx pgx.Tx, e MutationAuditEntry) error {
	var (
		beforeJSON []byte
		afterJSON  []byte
		err        error
	)
	if e.BeforeData != nil {
		beforeJSON, err = json.Marshal(e.BeforeData)
		if err != nil {
			return fmt.Errorf("storage: marshal mutation audit before_data: %w", err)
		}
	}
	if e.AfterData != nil {
		afterJSON, err = json.Marshal(e.AfterData)
		if err != nil {
			return fmt.Errorf("storage: marshal mutation audit after_data: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO mutation_audit_log (run_id, actor, operation, resource_type, resource_id, before_data, after_data)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb)`,
		e.RunID, e.Actor, e.Operation, e.ResourceType, e.ResourceID, beforeJSON, afterJSON,
	)
	if err != nil {
		return fmt.Errorf("storage: insert mutation audit: %w", err)
	}
	return nil
}

// CountMutationAudits returns how many audit rows exist for a resource.
func (db *DB) CountMutationAudits(ctx context.Context, resourceType, resourceID string) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM mutation_audit_log WHERE resource_type = $1 AND resource_id = $2`,
		resourceType, resourceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count mutation audits: %w", err)
	}
	return n, nil
}

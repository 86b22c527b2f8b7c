package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arrowlimo/alms/internal/model"
)

const runColumns = `id, mode, checks, reserve_filter, started_by, started_at, completed_at,
	findings_count, fixed_count, failed_count, error_message`

func scanRun(row pgx.Row, r *model.ReconciliationRun) error {
	return row.Scan(&r.ID, &r.Mode, &r.Checks, &r.ReserveFilter, &r.StartedBy, &r.StartedAt,
		&r.CompletedAt, &r.FindingsCount, &r.FixedCount, &r.FailedCount, &r.Error)
}

// CreateRun inserts a new reconciliation run.
func (db *DB) CreateRun(ctx context.Context, run model.ReconciliationRun) error {
	if run.Checks == nil {
		run.Checks = []string{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO reconciliation_runs (id, mode, checks, reserve_filter, started_by, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, string(run.Mode), run.Checks, run.ReserveFilter, run.StartedBy, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create run: %w", err)
	}
	return nil
}

// CompleteRun stores a run's final counts and completion time, plus the
// failure reason for runs that ended in error.
func (db *DB) CompleteRun(ctx context.Context, run model.ReconciliationRun) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE reconciliation_runs
		 SET completed_at = $2, findings_count = $3, fixed_count = $4, failed_count = $5,
		     error_message = $6
		 WHERE id = $1`,
		run.ID, run.CompletedAt, run.FindingsCount, run.FixedCount, run.FailedCount, run.Error,
	)
	if err != nil {
		return fmt.Errorf("storage: complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// InsertFindings bulk-inserts findings using COPY.
func (db *DB) InsertFindings(ctx context.Context, findings []model.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	columns := []string{
		"id", "run_id", "check_name", "severity", "entity_type", "entity_key",
		"expected", "actual", "message", "fixable", "fixed",
	}
	rows := make([][]any, len(findings))
	for i, f := range findings {
		rows[i] = []any{
			f.ID, f.RunID, f.Check, string(f.Severity), f.EntityType, f.EntityKey,
			f.Expected, f.Actual, f.Message, f.Fixable, f.Fixed,
		}
	}
	if _, err := db.pool.CopyFrom(ctx, pgx.Identifier{"reconciliation_findings"}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("storage: copy findings: %w", err)
	}
	return nil
}

// GetRun returns one run or ErrNotFound.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.ReconciliationRun, error) {
	var r model.ReconciliationRun
	err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM reconciliation_runs WHERE id = $1`, id), &r)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r, fmt.Errorf("storage: run %s: %w", id, ErrNotFound)
		}
		return r, fmt.Errorf("storage: get run: %w", err)
	}
	return r, nil
}

// LatestRun returns the most recently started run or ErrNotFound.
func (db *DB) LatestRun(ctx context.Context) (model.ReconciliationRun, error) {
	var r model.ReconciliationRun
	err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM reconciliation_runs ORDER BY started_at DESC LIMIT 1`), &r)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r, fmt.Errorf("storage: latest run: %w", ErrNotFound)
		}
		return r, fmt.Errorf("storage: latest run: %w", err)
	}
	return r, nil
}

// ListFindings returns a run's findings ordered by check then entity.
func (db *DB) ListFindings(ctx context.Context, runID uuid.UUID) ([]model.Finding, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, check_name, severity, entity_type, entity_key,
		        expected, actual, message, fixable, fixed
		 FROM reconciliation_findings WHERE run_id = $1
		 ORDER BY check_name, entity_type, entity_key`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query findings: %w", err)
	}
	defer rows.Close()

	out := []model.Finding{}
	for rows.Next() {
		var f model.Finding
		if err := rows.Scan(&f.ID, &f.RunID, &f.Check, &f.Severity, &f.EntityType, &f.EntityKey,
			&f.Expected, &f.Actual, &f.Message, &f.Fixable, &f.Fixed,
		); err != nil {
			return nil, fmt.Errorf("storage: scan finding: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

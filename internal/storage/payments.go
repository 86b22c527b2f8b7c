package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arrowlimo/alms/internal/model"
)

// OrphanPayments groups payments whose reserve number has no charter.
// Amount is the group total and PaymentDate the earliest payment.
func (db *DB) OrphanPayments(ctx context.Context, reserveFilter *string) ([]model.PaymentGroup, error) {
	return db.queryPaymentGroups(ctx,
		`SELECT p.reserve_number, SUM(p.amount), MIN(p.payment_date), ''::text,
		        array_agg(p.payment_id ORDER BY p.payment_id)
		 FROM payments p
		 WHERE NOT EXISTS (SELECT 1 FROM charters c WHERE c.reserve_number = p.reserve_number)
		   AND ($1::text IS NULL OR p.reserve_number = $1)
		 GROUP BY p.reserve_number
		 ORDER BY p.reserve_number`, reserveFilter)
}

// DuplicatePaymentGroups returns sets of two or more payments sharing
// reserve number, amount, date and method.
func (db *DB) DuplicatePaymentGroups(ctx context.Context, reserveFilter *string) ([]model.PaymentGroup, error) {
	return db.queryPaymentGroups(ctx,
		`SELECT reserve_number, amount, payment_date, payment_method,
		        array_agg(payment_id ORDER BY payment_id)
		 FROM payments
		 WHERE ($1::text IS NULL OR reserve_number = $1)
		 GROUP BY reserve_number, amount, payment_date, payment_method
		 HAVING COUNT(*) > 1
		 ORDER BY reserve_number, payment_date, amount`, reserveFilter)
}

func (db *DB) queryPaymentGroups(ctx context.Context, sql string, reserveFilter *string) ([]model.PaymentGroup, error) {
	rows, err := db.pool.Query(ctx, sql, reserveFilter)
	if err != nil {
		return nil, fmt.Errorf("storage: query payment groups: %w", err)
	}
	defer rows.Close()

	var out []model.PaymentGroup
	for rows.Next() {
		var g model.PaymentGroup
		if err := rows.Scan(&g.ReserveNumber, &g.Amount, &g.PaymentDate, &g.Method, &g.PaymentIDs); err != nil {
			return nil, fmt.Errorf("storage: scan payment group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UnlinkedChartedPayments returns payments whose reserve number matches a
// charter but whose charter_id is unset or points elsewhere.
func (db *DB) UnlinkedChartedPayments(ctx context.Context, reserveFilter *string) ([]model.UnlinkedPayment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT p.payment_id, p.reserve_number, c.charter_id
		 FROM payments p
		 JOIN charters c ON c.reserve_number = p.reserve_number
		 WHERE p.charter_id IS DISTINCT FROM c.charter_id
		   AND ($1::text IS NULL OR p.reserve_number = $1)
		 ORDER BY p.payment_id`, reserveFilter,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query unlinked payments: %w", err)
	}
	defer rows.Close()

	var out []model.UnlinkedPayment
	for rows.Next() {
		var u model.UnlinkedPayment
		if err := rows.Scan(&u.PaymentID, &u.ReserveNumber, &u.CharterID); err != nil {
			return nil, fmt.Errorf("storage: scan unlinked payment: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// LinkPaymentToCharter sets payments.charter_id and records the change.
func (db *DB) LinkPaymentToCharter(ctx context.Context, runID uuid.UUID, actor string, u model.UnlinkedPayment) error {
	return db.InTx(ctx, func(tx pgx.Tx) error {
		var before *int64
		err := tx.QueryRow(ctx,
			`SELECT charter_id FROM payments WHERE payment_id = $1 FOR UPDATE`, u.PaymentID,
		).Scan(&before)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("storage: payment %d: %w", u.PaymentID, ErrNotFound)
			}
			return fmt.Errorf("storage: lock payment: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE payments SET charter_id = $2 WHERE payment_id = $1`, u.PaymentID, u.CharterID,
		); err != nil {
			return fmt.Errorf("storage: link payment: %w", err)
		}
		return InsertMutationAuditTx(ctx, tx, MutationAuditEntry{
			RunID:        &runID,
			Actor:        actor,
			Operation:    "link_payment",
			ResourceType: "payment",
			ResourceID:   strconv.FormatInt(u.PaymentID, 10),
			BeforeData:   map[string]any{"charter_id": before},
			AfterData:    map[string]any{"charter_id": u.CharterID},
		})
	})
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/arrowlimo/alms/internal/model"
)

const charterColumns = `c.charter_id, c.reserve_number, c.client_name, c.charter_date,
	c.total_amount_due, c.paid_amount, c.balance, c.status, c.cancelled`

func scanCharter(row pgx.Row, c *model.Charter, extra ...any) error {
	dest := []any{
		&c.ID, &c.ReserveNumber, &c.ClientName, &c.CharterDate,
		&c.TotalAmountDue, &c.PaidAmount, &c.Balance, &c.Status, &c.Cancelled,
	}
	return row.Scan(append(dest, extra...)...)
}

// CreateCharter inserts a charter and returns it with its generated id.
func (db *DB) CreateCharter(ctx context.Context, c model.Charter) (model.Charter, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO charters (reserve_number, client_name, charter_date, total_amount_due, paid_amount, balance, status, cancelled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING charter_id`,
		c.ReserveNumber, c.ClientName, c.CharterDate, c.TotalAmountDue, c.PaidAmount, c.Balance,
		defaultString(c.Status, "booked"), c.Cancelled,
	).Scan(&c.ID)
	if err != nil {
		return model.Charter{}, fmt.Errorf("storage: create charter: %w", err)
	}
	if c.Status == "" {
		c.Status = "booked"
	}
	return c, nil
}

// AddCharge appends a charge line to a charter.
func (db *DB) AddCharge(ctx context.Context, ch model.Charge) (model.Charge, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO charter_charges (charter_id, description, amount) VALUES ($1, $2, $3) RETURNING charge_id`,
		ch.CharterID, ch.Description, ch.Amount,
	).Scan(&ch.ID)
	if err != nil {
		return model.Charge{}, fmt.Errorf("storage: add charge: %w", err)
	}
	return ch, nil
}

// AddPayment records a payment against a reserve number.
func (db *DB) AddPayment(ctx context.Context, p model.Payment) (model.Payment, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO payments (reserve_number, charter_id, amount, payment_date, payment_method, reference)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING payment_id`,
		p.ReserveNumber, p.CharterID, p.Amount, p.PaymentDate, p.Method, p.Reference,
	).Scan(&p.ID)
	if err != nil {
		return model.Payment{}, fmt.Errorf("storage: add payment: %w", err)
	}
	return p, nil
}

// CharterLedgers loads every charter (or only reserveFilter when non-nil) with
// its charge and payment aggregates. Payments are aggregated by reserve number.
func (db *DB) CharterLedgers(ctx context.Context, reserveFilter *string) ([]model.CharterLedger, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+charterColumns+`,
		        COALESCE(ch.total, 0), COALESCE(ch.n, 0),
		        COALESCE(p.total, 0), COALESCE(p.n, 0)
		 FROM charters c
		 LEFT JOIN (
		     SELECT charter_id, SUM(amount) AS total, COUNT(*) AS n
		     FROM charter_charges GROUP BY charter_id
		 ) ch ON ch.charter_id = c.charter_id
		 LEFT JOIN (
		     SELECT reserve_number, SUM(amount) AS total, COUNT(*) AS n
		     FROM payments GROUP BY reserve_number
		 ) p ON p.reserve_number = c.reserve_number
		 WHERE ($1::text IS NULL OR c.reserve_number = $1)
		 ORDER BY c.reserve_number`, reserveFilter,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query charter ledgers: %w", err)
	}
	defer rows.Close()

	var out []model.CharterLedger
	for rows.Next() {
		var l model.CharterLedger
		if err := scanCharter(rows, &l.Charter, &l.ChargeSum, &l.ChargeCount, &l.PaymentSum, &l.PaymentCount); err != nil {
			return nil, fmt.Errorf("storage: scan charter ledger: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetCharterDetail returns the ledger of one charter with its charges and payments.
func (db *DB) GetCharterDetail(ctx context.Context, reserveNumber string) (model.CharterDetail, error) {
	ledgers, err := db.CharterLedgers(ctx, &reserveNumber)
	if err != nil {
		return model.CharterDetail{}, err
	}
	if len(ledgers) == 0 {
		return model.CharterDetail{}, fmt.Errorf("storage: charter %s: %w", reserveNumber, ErrNotFound)
	}
	detail := model.CharterDetail{Ledger: ledgers[0], Charges: []model.Charge{}, Payments: []model.Payment{}}

	rows, err := db.pool.Query(ctx,
		`SELECT charge_id, charter_id, description, amount FROM charter_charges
		 WHERE charter_id = $1 ORDER BY charge_id`, detail.Ledger.ID,
	)
	if err != nil {
		return model.CharterDetail{}, fmt.Errorf("storage: query charges: %w", err)
	}
	for rows.Next() {
		var ch model.Charge
		if err := rows.Scan(&ch.ID, &ch.CharterID, &ch.Description, &ch.Amount); err != nil {
			rows.Close()
			return model.CharterDetail{}, fmt.Errorf("storage: scan charge: %w", err)
		}
		detail.Charges = append(detail.Charges, ch)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.CharterDetail{}, fmt.Errorf("storage: query charges: %w", err)
	}

	rows, err = db.pool.Query(ctx,
		`SELECT payment_id, reserve_number, charter_id, amount, payment_date, payment_method, reference
		 FROM payments WHERE reserve_number = $1 ORDER BY payment_date, payment_id`, reserveNumber,
	)
	if err != nil {
		return model.CharterDetail{}, fmt.Errorf("storage: query payments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.ReserveNumber, &p.CharterID, &p.Amount, &p.PaymentDate, &p.Method, &p.Reference); err != nil {
			return model.CharterDetail{}, fmt.Errorf("storage: scan payment: %w", err)
		}
		detail.Payments = append(detail.Payments, p)
	}
	return detail, rows.Err()
}

// CharterFix is the set of corrections to apply to one charter. The amounts
// are recomputed from charter_charges and payments inside the fix
// transaction, so rows committed after the audit snapshot are included.
// Corrections are applied in order: total due, paid amount, then balance.
type CharterFix struct {
	CharterID          int64
	ReserveNumber      string
	SyncTotalAmountDue bool
	SyncPaidAmount     bool
	RecomputeBalance   bool
}

// Empty reports whether the fix changes nothing.
func (f CharterFix) Empty() bool {
	return !f.SyncTotalAmountDue && !f.SyncPaidAmount && !f.RecomputeBalance
}

// CharterAmounts is the stored money triple of a charter, used as audit before/after data.
type CharterAmounts struct {
	TotalAmountDue decimal.Decimal `json:"total_amount_due"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Balance        decimal.Decimal `json:"balance"`
}

// ApplyCharterFix applies fix in one serializable transaction, writing one
// mutation_audit_log row per changed field. The charter row is locked and the
// charge and payment sums are read after the lock. A correction whose target
// already matches the current sums is skipped. Concurrent writers surface as
// serialization failures for WithRetry.
func (db *DB) ApplyCharterFix(ctx context.Context, runID uuid.UUID, actor string, fix CharterFix) (model.Charter, error) {
	var out model.Charter
	err := db.InTxWith(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		reserve, cur, err := lockCharterAmounts(ctx, tx, fix.CharterID)
		if err != nil {
			return err
		}
		sums, err := currentSums(ctx, tx, fix.CharterID, reserve)
		if err != nil {
			return err
		}
		if fix.SyncTotalAmountDue && sums.chargeCount > 0 && !sums.chargeSum.Equal(cur.TotalAmountDue) {
			if cur, err = SetTotalAmountDue(ctx, tx, runID, actor, fix.CharterID, cur, sums.chargeSum); err != nil {
				return err
			}
		}
		if fix.SyncPaidAmount && !sums.paymentSum.Equal(cur.PaidAmount) {
			if cur, err = SetPaidAmount(ctx, tx, runID, actor, fix.CharterID, cur, sums.paymentSum); err != nil {
				return err
			}
		}
		if fix.RecomputeBalance && !cur.TotalAmountDue.Sub(cur.PaidAmount).Equal(cur.Balance) {
			if _, err = RecomputeBalance(ctx, tx, runID, actor, fix.CharterID, cur); err != nil {
				return err
			}
		}
		return scanCharter(tx.QueryRow(ctx,
			`SELECT `+charterColumns+` FROM charters c WHERE c.charter_id = $1`, fix.CharterID), &out)
	})
	if err != nil {
		return model.Charter{}, err
	}
	return out, nil
}

func lockCharterAmounts(ctx context.Context, tx pgx.Tx, charterID int64) (string, CharterAmounts, error) {
	var (
		reserve string
		a       CharterAmounts
	)
	err := tx.QueryRow(ctx,
		`SELECT reserve_number, total_amount_due, paid_amount, balance
		 FROM charters WHERE charter_id = $1 FOR UPDATE`,
		charterID,
	).Scan(&reserve, &a.TotalAmountDue, &a.PaidAmount, &a.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", a, fmt.Errorf("storage: charter %d: %w", charterID, ErrNotFound)
		}
		return "", a, fmt.Errorf("storage: lock charter: %w", err)
	}
	return reserve, a, nil
}

type charterSums struct {
	chargeSum   decimal.Decimal
	chargeCount int
	paymentSum  decimal.Decimal
}

func currentSums(ctx context.Context, tx pgx.Tx, charterID int64, reserve string) (charterSums, error) {
	var s charterSums
	err := tx.QueryRow(ctx,
		`SELECT
		   (SELECT COALESCE(SUM(amount), 0) FROM charter_charges WHERE charter_id = $1),
		   (SELECT COUNT(*) FROM charter_charges WHERE charter_id = $1),
		   (SELECT COALESCE(SUM(amount), 0) FROM payments WHERE reserve_number = $2)`,
		charterID, reserve,
	).Scan(&s.chargeSum, &s.chargeCount, &s.paymentSum)
	if err != nil {
		return s, fmt.Errorf("storage: charter sums: %w", err)
	}
	return s, nil
}

// SetTotalAmountDue overwrites charters.total_amount_due inside tx.
func SetTotalAmountDue(ctx context.Context, tx pgx.Tx, runID uuid.UUID, actor string, charterID int64, before CharterAmounts, v decimal.Decimal) (CharterAmounts, error) {
	after := before
	after.TotalAmountDue = v
	if _, err := tx.Exec(ctx,
		`UPDATE charters SET total_amount_due = $2, updated_at = now() WHERE charter_id = $1`, charterID, v,
	); err != nil {
		return before, fmt.Errorf("storage: set total_amount_due: %w", err)
	}
	return after, auditCharter(ctx, tx, runID, actor, "set_total_amount_due", charterID, before, after)
}

// SetPaidAmount overwrites charters.paid_amount inside tx.
func SetPaidAmount(ctx context.Context, tx pgx.Tx, runID uuid.UUID, actor string, charterID int64, before CharterAmounts, v decimal.Decimal) (CharterAmounts, error) {
	after := before
	after.PaidAmount = v
	if _, err := tx.Exec(ctx,
		`UPDATE charters SET paid_amount = $2, updated_at = now() WHERE charter_id = $1`, charterID, v,
	); err != nil {
		return before, fmt.Errorf("storage: set paid_amount: %w", err)
	}
	return after, auditCharter(ctx, tx, runID, actor, "set_paid_amount", charterID, before, after)
}

// RecomputeBalance sets balance = total_amount_due - paid_amount inside tx.
func RecomputeBalance(ctx context.Context, tx pgx.Tx, runID uuid.UUID, actor string, charterID int64, before CharterAmounts) (CharterAmounts, error) {
	after := before
	if err := tx.QueryRow(ctx,
		`UPDATE charters SET balance = total_amount_due - paid_amount, updated_at = now()
		 WHERE charter_id = $1 RETURNING balance`, charterID,
	).Scan(&after.Balance); err != nil {
		return before, fmt.Errorf("storage: recompute balance: %w", err)
	}
	return after, auditCharter(ctx, tx, runID, actor, "recompute_balance", charterID, before, after)
}

func auditCharter(ctx context.Context, tx pgx.Tx, runID uuid.UUID, actor, op string, charterID int64, before, after CharterAmounts) error {
	return InsertMutationAuditTx(ctx, tx, MutationAuditEntry{
		RunID:        &runID,
		Actor:        actor,
		Operation:    op,
		ResourceType: "charter",
		ResourceID:   strconv.FormatInt(charterID, 10),
		BeforeData:   before,
		AfterData:    after,
	})
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

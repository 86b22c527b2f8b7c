package storage

import (
	"context"
	"fmt"

	"github.com/arrowlimo/alms/internal/model"
)

// CharterBalances returns charters dated within r. With outstandingOnly, only
// charters with a non-zero balance are returned.
func (db *DB) CharterBalances(ctx context.Context, r model.DateRange, outstandingOnly bool) ([]model.CharterBalance, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT reserve_number, client_name, charter_date, total_amount_due, paid_amount, balance, cancelled
		 FROM charters
		 WHERE ($1::date IS NULL OR charter_date >= $1)
		   AND ($2::date IS NULL OR charter_date <= $2)
		   AND (NOT $3 OR balance <> 0)
		 ORDER BY charter_date, reserve_number`, dateArg(r.From), dateArg(r.To), outstandingOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query charter balances: %w", err)
	}
	defer rows.Close()

	var out []model.CharterBalance
	for rows.Next() {
		var b model.CharterBalance
		if err := rows.Scan(&b.ReserveNumber, &b.ClientName, &b.CharterDate,
			&b.TotalAmountDue, &b.PaidAmount, &b.Balance, &b.Cancelled,
		); err != nil {
			return nil, fmt.Errorf("storage: scan charter balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MonthlyCharges totals charter charges by the month of the charter date.
func (db *DB) MonthlyCharges(ctx context.Context, r model.DateRange) ([]model.MonthAmount, error) {
	return db.queryMonthly(ctx,
		`SELECT date_trunc('month', c.charter_date)::date, SUM(ch.amount), 0::numeric
		 FROM charter_charges ch JOIN charters c ON c.charter_id = ch.charter_id
		 WHERE NOT c.cancelled
		   AND ($1::date IS NULL OR c.charter_date >= $1)
		   AND ($2::date IS NULL OR c.charter_date <= $2)
		 GROUP BY 1 ORDER BY 1`, r)
}

// MonthlyPayments totals payments received by payment month.
func (db *DB) MonthlyPayments(ctx context.Context, r model.DateRange) ([]model.MonthAmount, error) {
	return db.queryMonthly(ctx,
		`SELECT date_trunc('month', payment_date)::date, SUM(amount), 0::numeric
		 FROM payments
		 WHERE ($1::date IS NULL OR payment_date >= $1)
		   AND ($2::date IS NULL OR payment_date <= $2)
		 GROUP BY 1 ORDER BY 1`, r)
}

// MonthlyExpenses totals receipt gross and GST by receipt month.
func (db *DB) MonthlyExpenses(ctx context.Context, r model.DateRange) ([]model.MonthAmount, error) {
	return db.queryMonthly(ctx,
		`SELECT date_trunc('month', receipt_date)::date, SUM(gross_amount), SUM(gst_amount)
		 FROM receipts
		 WHERE ($1::date IS NULL OR receipt_date >= $1)
		   AND ($2::date IS NULL OR receipt_date <= $2)
		 GROUP BY 1 ORDER BY 1`, r)
}

func (db *DB) queryMonthly(ctx context.Context, sql string, r model.DateRange) ([]model.MonthAmount, error) {
	rows, err := db.pool.Query(ctx, sql, dateArg(r.From), dateArg(r.To))
	if err != nil {
		return nil, fmt.Errorf("storage: query monthly totals: %w", err)
	}
	defer rows.Close()

	var out []model.MonthAmount
	for rows.Next() {
		var m model.MonthAmount
		if err := rows.Scan(&m.Month, &m.Amount, &m.GST); err != nil {
			return nil, fmt.Errorf("storage: scan monthly total: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

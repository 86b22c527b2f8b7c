package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arrowlimo/alms/internal/model"
)

const receiptColumns = `receipt_id, receipt_date, vendor_name, canonical_vendor, gross_amount,
	gst_amount, gst_exempt, category, description, banking_transaction_id`

func scanReceipt(row pgx.Row, r *model.Receipt) error {
	return row.Scan(&r.ID, &r.ReceiptDate, &r.VendorName, &r.CanonicalVendor, &r.GrossAmount,
		&r.GSTAmount, &r.GSTExempt, &r.Category, &r.Description, &r.BankingTransactionID)
}

// CreateReceipt inserts a receipt.
func (db *DB) CreateReceipt(ctx context.Context, r model.Receipt) (model.Receipt, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO receipts (receipt_date, vendor_name, canonical_vendor, gross_amount, gst_amount,
		                       gst_exempt, category, description, banking_transaction_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING receipt_id`,
		r.ReceiptDate, r.VendorName, r.CanonicalVendor, r.GrossAmount, r.GSTAmount,
		r.GSTExempt, r.Category, r.Description, r.BankingTransactionID,
	).Scan(&r.ID)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("storage: create receipt: %w", err)
	}
	return r, nil
}

// ReceiptLinks returns every receipt linked to a banking transaction together
// with the transaction's amounts.
func (db *DB) ReceiptLinks(ctx context.Context) ([]model.ReceiptLink, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT r.receipt_id, r.gross_amount, b.transaction_id, b.debit_amount, b.credit_amount
		 FROM receipts r
		 JOIN banking_transactions b ON b.transaction_id = r.banking_transaction_id
		 ORDER BY r.receipt_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query receipt links: %w", err)
	}
	defer rows.Close()

	var out []model.ReceiptLink
	for rows.Next() {
		var l model.ReceiptLink
		if err := rows.Scan(&l.ReceiptID, &l.GrossAmount, &l.BankingTransactionID, &l.DebitAmount, &l.CreditAmount); err != nil {
			return nil, fmt.Errorf("storage: scan receipt link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReceiptsForGST returns the taxable (non-exempt) receipts.
func (db *DB) ReceiptsForGST(ctx context.Context) ([]model.Receipt, error) {
	return db.queryReceipts(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE NOT gst_exempt ORDER BY receipt_id`)
}

// UnlinkedReceipts returns receipts with no banking transaction, dated within r.
func (db *DB) UnlinkedReceipts(ctx context.Context, r model.DateRange) ([]model.Receipt, error) {
	return db.queryReceipts(ctx,
		`SELECT `+receiptColumns+` FROM receipts
		 WHERE banking_transaction_id IS NULL
		   AND ($1::date IS NULL OR receipt_date >= $1)
		   AND ($2::date IS NULL OR receipt_date <= $2)
		 ORDER BY receipt_date, receipt_id`, dateArg(r.From), dateArg(r.To))
}

func (db *DB) queryReceipts(ctx context.Context, sql string, args ...any) ([]model.Receipt, error) {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query receipts: %w", err)
	}
	defer rows.Close()

	var out []model.Receipt
	for rows.Next() {
		var r model.Receipt
		if err := scanReceipt(rows, &r); err != nil {
			return nil, fmt.Errorf("storage: scan receipt: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LinkReceipt links a receipt to a banking transaction. Returns ErrAlreadyLinked
// when the receipt was linked since it was read, or the transaction already
// has a receipt.
func (db *DB) LinkReceipt(ctx context.Context, actor string, receiptID, transactionID int64) error {
	return db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE receipts SET banking_transaction_id = $2
			 WHERE receipt_id = $1 AND banking_transaction_id IS NULL`, receiptID, transactionID,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("storage: banking transaction %d: %w", transactionID, ErrAlreadyLinked)
			}
			return fmt.Errorf("storage: link receipt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("storage: receipt %d: %w", receiptID, ErrAlreadyLinked)
		}
		return InsertMutationAuditTx(ctx, tx, MutationAuditEntry{
			Actor:        actor,
			Operation:    "link_receipt",
			ResourceType: "receipt",
			ResourceID:   strconv.FormatInt(receiptID, 10),
			AfterData:    map[string]any{"banking_transaction_id": transactionID},
		})
	})
}

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arrowlimo/alms/internal/model"
)

// ImportTransactions records batch and inserts txns in one transaction.
// Rows whose source_hash already exists are skipped, so re-importing a
// statement is a no-op. The batch counts are filled in and returned.
func (db *DB) ImportTransactions(ctx context.Context, batch model.ImportBatch, txns []model.BankingTransaction) (model.ImportBatch, error) {
	batch.ParsedCount = len(txns)
	err := db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO import_batches (id, account_number, source_file, format, parsed_count)
			 VALUES ($1, $2, $3, $4, $5)`,
			batch.ID, batch.AccountNumber, batch.SourceFile, batch.Format, batch.ParsedCount,
		); err != nil {
			return fmt.Errorf("storage: insert import batch: %w", err)
		}

		b := &pgx.Batch{}
		for _, t := range txns {
			b.Queue(
				`INSERT INTO banking_transactions (account_number, transaction_date, description,
				     debit_amount, credit_amount, balance, vendor_extracted, source_hash, import_batch_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				 ON CONFLICT (source_hash) DO NOTHING`,
				t.AccountNumber, t.TransactionDate, t.Description, t.DebitAmount, t.CreditAmount,
				t.Balance, t.VendorExtracted, t.SourceHash, batch.ID,
			)
		}
		results := tx.SendBatch(ctx, b)
		inserted := 0
		for range txns {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("storage: insert banking transaction: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("storage: close batch: %w", err)
		}

		batch.InsertedCount = inserted
		batch.DuplicateCount = len(txns) - inserted
		return tx.QueryRow(ctx,
			`UPDATE import_batches SET inserted_count = $2, duplicate_count = $3
			 WHERE id = $1 RETURNING imported_at`,
			batch.ID, batch.InsertedCount, batch.DuplicateCount,
		).Scan(&batch.ImportedAt)
	})
	if err != nil {
		return model.ImportBatch{}, err
	}
	return batch, nil
}

// UnmatchedDebits returns debit transactions dated within r that no receipt links to.
func (db *DB) UnmatchedDebits(ctx context.Context, r model.DateRange) ([]model.BankingTransaction, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT b.transaction_id, b.account_number, b.transaction_date, b.description,
		        b.debit_amount, b.credit_amount, b.balance, b.vendor_extracted, b.source_hash, b.import_batch_id
		 FROM banking_transactions b
		 WHERE b.debit_amount > 0
		   AND NOT EXISTS (SELECT 1 FROM receipts r WHERE r.banking_transaction_id = b.transaction_id)
		   AND ($1::date IS NULL OR b.transaction_date >= $1)
		   AND ($2::date IS NULL OR b.transaction_date <= $2)
		 ORDER BY b.transaction_date, b.transaction_id`, dateArg(r.From), dateArg(r.To),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query unmatched debits: %w", err)
	}
	defer rows.Close()

	var out []model.BankingTransaction
	for rows.Next() {
		var t model.BankingTransaction
		if err := rows.Scan(&t.ID, &t.AccountNumber, &t.TransactionDate, &t.Description,
			&t.DebitAmount, &t.CreditAmount, &t.Balance, &t.VendorExtracted, &t.SourceHash, &t.ImportBatchID,
		); err != nil {
			return nil, fmt.Errorf("storage: scan banking transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountBankingTransactions returns the number of transactions for an account.
func (db *DB) CountBankingTransactions(ctx context.Context, account string) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM banking_transactions WHERE account_number = $1`, account,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count banking transactions: %w", err)
	}
	return n, nil
}

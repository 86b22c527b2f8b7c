package statement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/telemetry"
)

// Store persists parsed statements.
type Store interface {
	ImportTransactions(ctx context.Context, batch model.ImportBatch, txns []model.BankingTransaction) (model.ImportBatch, error)
}

// ImportOptions controls one import.
type ImportOptions struct {
	Account string
	// Format overrides extension-based detection when set.
	Format Format
	// DryRun parses and fingerprints without writing.
	DryRun bool
}

// ImportResult is the outcome of an import.
type ImportResult struct {
	Batch        model.ImportBatch           `json:"batch"`
	Transactions []model.BankingTransaction `json:"transactions"`
	RowErrors    []RowError                 `json:"row_errors"`
	DryRun       bool                       `json:"dry_run"`
}

// Importer parses statement files and writes them through a Store.
type Importer struct {
	store    Store
	logger   *slog.Logger
	imported metric.Int64Counter
}

// NewImporter creates an importer.
func NewImporter(store Store, logger *slog.Logger) *Importer {
	counter, _ := telemetry.Meter("alms/statement").Int64Counter("alms.statement.imported",
		metric.WithDescription("Banking transactions read from statements"),
	)
	return &Importer{store: store, logger: logger, imported: counter}
}

// ImportFile parses path and stores its transactions under opts.Account.
// Re-importing the same file inserts nothing: every row's fingerprint already exists.
func (im *Importer) ImportFile(ctx context.Context, path string, opts ImportOptions) (ImportResult, error) {
	if strings.TrimSpace(opts.Account) == "" {
		return ImportResult{}, errors.New("statement: account is required")
	}
	st, err := ParseFile(path, opts.Format)
	if err != nil {
		return ImportResult{}, err
	}

	txns := ToBankingTransactions(opts.Account, st.Transactions)
	batch := model.ImportBatch{
		ID:            uuid.New(),
		AccountNumber: opts.Account,
		SourceFile:    filepath.Base(path),
		Format:        string(st.Format),
		ParsedCount:   len(txns),
	}
	res := ImportResult{Batch: batch, Transactions: txns, RowErrors: st.Errors, DryRun: opts.DryRun}

	for _, re := range st.Errors {
		im.logger.Warn("statement: skipped row", "file", batch.SourceFile, "line", re.Line, "error", re.Err)
	}
	if opts.DryRun {
		return res, nil
	}

	stored, err := im.store.ImportTransactions(ctx, batch, txns)
	if err != nil {
		return ImportResult{}, fmt.Errorf("statement: import %s: %w", batch.SourceFile, err)
	}
	res.Batch = stored

	format := attribute.String("format", batch.Format)
	im.imported.Add(ctx, int64(stored.InsertedCount), metric.WithAttributes(format, attribute.String("outcome", "inserted")))
	im.imported.Add(ctx, int64(stored.DuplicateCount), metric.WithAttributes(format, attribute.String("outcome", "duplicate")))
	im.logger.Info("statement: imported",
		"file", batch.SourceFile, "account", opts.Account, "format", batch.Format,
		"parsed", stored.ParsedCount, "inserted", stored.InsertedCount,
		"duplicates", stored.DuplicateCount, "row_errors", len(st.Errors))
	return res, nil
}

// ToBankingTransactions fingerprints parsed rows and extracts vendor hints.
func ToBankingTransactions(account string, txns []Transaction) []model.BankingTransaction {
	hashes := Fingerprints(account, txns)
	out := make([]model.BankingTransaction, len(txns))
	for i, t := range txns {
		out[i] = model.BankingTransaction{
			AccountNumber:   account,
			TransactionDate: t.Date,
			Description:     t.Description,
			DebitAmount:     t.Debit,
			CreditAmount:    t.Credit,
			Balance:         t.Balance,
			VendorExtracted: ExtractVendor(t.Description),
			SourceHash:      hashes[i],
		}
	}
	return out
}

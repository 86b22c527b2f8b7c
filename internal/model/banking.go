package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankingTransaction is one line of an imported bank statement.
// Exactly one of DebitAmount/CreditAmount is non-zero for well-formed rows.
type BankingTransaction struct {
	ID              int64            `json:"transaction_id"`
	AccountNumber   string           `json:"account_number"`
	TransactionDate time.Time        `json:"transaction_date"`
	Description     string           `json:"description"`
	DebitAmount     decimal.Decimal  `json:"debit_amount"`
	CreditAmount    decimal.Decimal  `json:"credit_amount"`
	Balance         *decimal.Decimal `json:"balance,omitempty"`
	VendorExtracted string           `json:"vendor_extracted"`
	SourceHash      string           `json:"source_hash"`
	ImportBatchID   *uuid.UUID       `json:"import_batch_id,omitempty"`
}

// ImportBatch records one statement import.
type ImportBatch struct {
	ID             uuid.UUID `json:"id"`
	AccountNumber  string    `json:"account_number"`
	SourceFile     string    `json:"source_file"`
	Format         string    `json:"format"`
	ParsedCount    int       `json:"parsed_count"`
	InsertedCount  int       `json:"inserted_count"`
	DuplicateCount int       `json:"duplicate_count"`
	ImportedAt     time.Time `json:"imported_at"`
}

// Receipt is an expense receipt, optionally linked to the banking debit that paid it.
type Receipt struct {
	ID                   int64           `json:"receipt_id"`
	ReceiptDate          time.Time       `json:"receipt_date"`
	VendorName           string          `json:"vendor_name"`
	CanonicalVendor      string          `json:"canonical_vendor"`
	GrossAmount          decimal.Decimal `json:"gross_amount"`
	GSTAmount            decimal.Decimal `json:"gst_amount"`
	GSTExempt            bool            `json:"gst_exempt"`
	Category             string          `json:"category"`
	Description          string          `json:"description"`
	BankingTransactionID *int64          `json:"banking_transaction_id,omitempty"`
}

// ReceiptLink pairs a linked receipt with the amounts of its banking transaction.
type ReceiptLink struct {
	ReceiptID            int64           `json:"receipt_id"`
	GrossAmount          decimal.Decimal `json:"gross_amount"`
	BankingTransactionID int64           `json:"banking_transaction_id"`
	DebitAmount          decimal.Decimal `json:"debit_amount"`
	CreditAmount         decimal.Decimal `json:"credit_amount"`
}

// VendorCount is a distinct raw vendor spelling and how many receipts use it.
type VendorCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// VendorAlias maps a raw vendor spelling to its canonical name.
type VendorAlias struct {
	Alias     string `json:"alias"`
	Canonical string `json:"canonical"`
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CharterBalance is one row of the charter-balances and receivables reports.
type CharterBalance struct {
	ReserveNumber  string          `json:"reserve_number"`
	ClientName     string          `json:"client_name"`
	CharterDate    time.Time       `json:"charter_date"`
	TotalAmountDue decimal.Decimal `json:"total_amount_due"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Balance        decimal.Decimal `json:"balance"`
	Cancelled      bool            `json:"cancelled"`
}

// MonthAmount is a per-month total. GST is only populated for receipt totals.
type MonthAmount struct {
	Month  time.Time       `json:"month"`
	Amount decimal.Decimal `json:"amount"`
	GST    decimal.Decimal `json:"gst"`
}

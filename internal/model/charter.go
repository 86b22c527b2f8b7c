// Package model defines the core domain types for ALMS.
//
// Types correspond to almsdata tables. Money is always decimal.Decimal;
// floats never carry currency amounts.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Charter is a booked limousine charter, keyed by its reserve number.
type Charter struct {
	ID             int64           `json:"charter_id"`
	ReserveNumber  string          `json:"reserve_number"`
	ClientName     string          `json:"client_name"`
	CharterDate    time.Time       `json:"charter_date"`
	TotalAmountDue decimal.Decimal `json:"total_amount_due"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Balance        decimal.Decimal `json:"balance"`
	Status         string          `json:"status"`
	Cancelled      bool            `json:"cancelled"`
}

// Charge is one line item billed on a charter.
type Charge struct {
	ID          int64           `json:"charge_id"`
	CharterID   int64           `json:"charter_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Payment is money received against a reserve number.
type Payment struct {
	ID            int64           `json:"payment_id"`
	ReserveNumber string          `json:"reserve_number"`
	CharterID     *int64          `json:"charter_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date"`
	Method        string          `json:"payment_method"`
	Reference     string          `json:"reference"`
}

// CharterLedger is a charter together with the aggregates the reconciliation
// checks compare against its stored totals.
type CharterLedger struct {
	Charter
	ChargeSum    decimal.Decimal `json:"charge_sum"`
	ChargeCount  int             `json:"charge_count"`
	PaymentSum   decimal.Decimal `json:"payment_sum"`
	PaymentCount int             `json:"payment_count"`
}

// PaymentGroup is a set of payments sharing a key (orphan reserve number, or
// a duplicate reserve/amount/date/method tuple).
type PaymentGroup struct {
	ReserveNumber string          `json:"reserve_number"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date"`
	Method        string          `json:"payment_method"`
	PaymentIDs    []int64         `json:"payment_ids"`
}

// UnlinkedPayment is a payment whose reserve number matches a charter but whose
// charter_id was never set.
type UnlinkedPayment struct {
	PaymentID     int64  `json:"payment_id"`
	ReserveNumber string `json:"reserve_number"`
	CharterID     int64  `json:"charter_id"`
}

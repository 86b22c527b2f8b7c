// Package reconcile checks almsdata against the bookkeeping invariants that
// tie charters, charges, payments, receipts and banking transactions together,
// and optionally applies the corrections that are safe to automate.
package reconcile

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/arrowlimo/alms/internal/model"
)

// ErrUnknownCheck is returned when a requested check name is not in the catalog.
var ErrUnknownCheck = errors.New("reconcile: unknown check")

// Check names.
const (
	CheckChargeTotal          = "charge_total"
	CheckMissingCharges       = "missing_charges"
	CheckPaidAmount           = "paid_amount"
	CheckBalance              = "balance"
	CheckOverpaid             = "overpaid"
	CheckCancelledBalance     = "cancelled_balance"
	CheckOrphanPayment        = "orphan_payment"
	CheckDuplicatePayment     = "duplicate_payment"
	CheckPaymentLink          = "payment_link"
	CheckReceiptBankingAmount = "receipt_banking_amount"
	CheckReceiptGST           = "receipt_gst"
)

// CheckInfo describes one invariant.
type CheckInfo struct {
	Name        string         `json:"name"`
	Severity    model.Severity `json:"severity"`
	Fixable     bool           `json:"fixable"`
	Description string         `json:"description"`
}

var catalog = []CheckInfo{
	{CheckChargeTotal, model.SeverityError, true, "charter charges sum to total_amount_due"},
	{CheckMissingCharges, model.SeverityWarning, false, "charters with an amount due have at least one charge"},
	{CheckPaidAmount, model.SeverityError, true, "payments for a reserve number sum to paid_amount"},
	{CheckBalance, model.SeverityError, true, "balance equals total_amount_due minus paid_amount"},
	{CheckOverpaid, model.SeverityWarning, false, "active charters are not paid beyond the amount due"},
	{CheckCancelledBalance, model.SeverityWarning, false, "cancelled charters carry no outstanding balance"},
	{CheckOrphanPayment, model.SeverityError, false, "every payment's reserve number has a charter"},
	{CheckDuplicatePayment, model.SeverityWarning, false, "no two payments share reserve, amount, date and method"},
	{CheckPaymentLink, model.SeverityInfo, true, "payments point at the charter of their reserve number"},
	{CheckReceiptBankingAmount, model.SeverityError, false, "linked receipts match their banking transaction amount"},
	{CheckReceiptGST, model.SeverityWarning, false, "taxable receipts carry GST included in the gross amount"},
}

// Catalog returns every check in evaluation order.
func Catalog() []CheckInfo {
	return slices.Clone(catalog)
}

func lookup(name string) CheckInfo {
	for _, c := range catalog {
		if c.Name == name {
			return c
		}
	}
	return CheckInfo{}
}

// CheckSet is the set of enabled checks.
type CheckSet map[string]bool

// ParseChecks validates check names. An empty list enables every check.
func ParseChecks(names []string) (CheckSet, error) {
	set := CheckSet{}
	if len(names) == 0 {
		for _, c := range catalog {
			set[c.Name] = true
		}
		return set, nil
	}
	for _, raw := range names {
		for _, n := range strings.Split(raw, ",") {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			if lookup(n).Name == "" {
				return nil, fmt.Errorf("%w %q", ErrUnknownCheck, n)
			}
			set[n] = true
		}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no checks selected", ErrUnknownCheck)
	}
	return set, nil
}

// Names returns the enabled checks in catalog order.
func (s CheckSet) Names() []string {
	var out []string
	for _, c := range catalog {
		if s[c.Name] {
			out = append(out, c.Name)
		}
	}
	return out
}

// Any reports whether any of names is enabled.
func (s CheckSet) Any(names ...string) bool {
	for _, n := range names {
		if s[n] {
			return true
		}
	}
	return false
}

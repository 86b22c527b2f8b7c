package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/storage"
)

// Options are the numeric parameters of the checks.
type Options struct {
	// Tolerance is the largest absolute difference still treated as equal.
	Tolerance decimal.Decimal
	// GSTRate is the GST rate included in receipt gross amounts (0.05 = 5%).
	GSTRate decimal.Decimal
}

// DefaultOptions returns a one-cent tolerance and 5% GST.
func DefaultOptions() Options {
	return Options{Tolerance: decimal.RequireFromString("0.01"), GSTRate: decimal.RequireFromString("0.05")}
}

func (o Options) equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(o.Tolerance)
}

func newFinding(check, entityType, entityKey, msg string, expected, actual *decimal.Decimal) model.Finding {
	info := lookup(check)
	return model.Finding{
		Check:      check,
		Severity:   info.Severity,
		EntityType: entityType,
		EntityKey:  entityKey,
		Expected:   expected,
		Actual:     actual,
		Message:    msg,
		Fixable:    info.Fixable,
	}
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

// EvaluateCharter runs the per-charter checks against one ledger. It returns
// the findings and the fix that would resolve the fixable ones. The balance,
// overpaid and cancelled_balance checks use the amounts as they will be after
// the charge_total and paid_amount fixes, so an apply run converges in one pass.
func EvaluateCharter(l model.CharterLedger, checks CheckSet, opts Options) ([]model.Finding, storage.CharterFix) {
	var findings []model.Finding
	fix := storage.CharterFix{CharterID: l.ID, ReserveNumber: l.ReserveNumber}
	key := l.ReserveNumber

	total := l.TotalAmountDue
	if checks[CheckChargeTotal] && l.ChargeCount > 0 && !opts.equal(l.ChargeSum, l.TotalAmountDue) {
		findings = append(findings, newFinding(CheckChargeTotal, "charter", key,
			fmt.Sprintf("charges sum to %s but total_amount_due is %s", l.ChargeSum.StringFixed(2), l.TotalAmountDue.StringFixed(2)),
			ptr(l.ChargeSum), ptr(l.TotalAmountDue)))
		total = l.ChargeSum
		fix.SyncTotalAmountDue = true
	}

	if checks[CheckMissingCharges] && l.ChargeCount == 0 && l.TotalAmountDue.IsPositive() {
		findings = append(findings, newFinding(CheckMissingCharges, "charter", key,
			fmt.Sprintf("total_amount_due is %s but the charter has no charges", l.TotalAmountDue.StringFixed(2)),
			nil, ptr(l.TotalAmountDue)))
	}

	paid := l.PaidAmount
	if checks[CheckPaidAmount] && !opts.equal(l.PaymentSum, l.PaidAmount) {
		findings = append(findings, newFinding(CheckPaidAmount, "charter", key,
			fmt.Sprintf("%d payment(s) sum to %s but paid_amount is %s", l.PaymentCount, l.PaymentSum.StringFixed(2), l.PaidAmount.StringFixed(2)),
			ptr(l.PaymentSum), ptr(l.PaidAmount)))
		paid = l.PaymentSum
		fix.SyncPaidAmount = true
	}

	balance := l.Balance
	if checks[CheckBalance] {
		expected := total.Sub(paid)
		if !opts.equal(expected, l.Balance) {
			findings = append(findings, newFinding(CheckBalance, "charter", key,
				fmt.Sprintf("balance is %s but total due minus paid is %s", l.Balance.StringFixed(2), expected.StringFixed(2)),
				ptr(expected), ptr(l.Balance)))
			balance = expected
			fix.RecomputeBalance = true
		}
	}

	if checks[CheckOverpaid] && !l.Cancelled && paid.GreaterThan(total.Add(opts.Tolerance)) {
		findings = append(findings, newFinding(CheckOverpaid, "charter", key,
			fmt.Sprintf("paid %s against %s due", paid.StringFixed(2), total.StringFixed(2)),
			ptr(total), ptr(paid)))
	}

	if checks[CheckCancelledBalance] && l.Cancelled && balance.GreaterThan(opts.Tolerance) {
		findings = append(findings, newFinding(CheckCancelledBalance, "charter", key,
			fmt.Sprintf("cancelled charter still shows %s outstanding", balance.StringFixed(2)),
			ptr(decimal.Zero), ptr(balance)))
	}

	return findings, fix
}

func idList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// EvaluateOrphans reports payment groups whose reserve number has no charter.
func EvaluateOrphans(groups []model.PaymentGroup) []model.Finding {
	out := make([]model.Finding, 0, len(groups))
	for _, g := range groups {
		out = append(out, newFinding(CheckOrphanPayment, "reserve_number", g.ReserveNumber,
			fmt.Sprintf("%d payment(s) totalling %s reference reserve %s which has no charter (payment ids %s)",
				len(g.PaymentIDs), g.Amount.StringFixed(2), g.ReserveNumber, idList(g.PaymentIDs)),
			nil, ptr(g.Amount)))
	}
	return out
}

// EvaluateDuplicates reports sets of identical payments.
func EvaluateDuplicates(groups []model.PaymentGroup) []model.Finding {
	out := make([]model.Finding, 0, len(groups))
	for _, g := range groups {
		out = append(out, newFinding(CheckDuplicatePayment, "payment", idList(g.PaymentIDs),
			fmt.Sprintf("%d payments of %s on %s by %q for reserve %s",
				len(g.PaymentIDs), g.Amount.StringFixed(2), g.PaymentDate.Format("2006-01-02"), g.Method, g.ReserveNumber),
			nil, ptr(g.Amount)))
	}
	return out
}

// EvaluatePaymentLinks reports payments not pointing at their reserve's charter.
func EvaluatePaymentLinks(unlinked []model.UnlinkedPayment) []model.Finding {
	out := make([]model.Finding, 0, len(unlinked))
	for _, u := range unlinked {
		out = append(out, newFinding(CheckPaymentLink, "payment", strconv.FormatInt(u.PaymentID, 10),
			fmt.Sprintf("payment for reserve %s is not linked to charter %d", u.ReserveNumber, u.CharterID),
			nil, nil))
	}
	return out
}

// EvaluateReceiptLinks compares each linked receipt with its banking amount.
// Debits are compared for expenses; a transaction with no debit is compared
// by its credit (refunds).
func EvaluateReceiptLinks(links []model.ReceiptLink, opts Options) []model.Finding {
	var out []model.Finding
	for _, l := range links {
		bank := l.DebitAmount
		if bank.IsZero() {
			bank = l.CreditAmount
		}
		if opts.equal(l.GrossAmount, bank) {
			continue
		}
		out = append(out, newFinding(CheckReceiptBankingAmount, "receipt", strconv.FormatInt(l.ReceiptID, 10),
			fmt.Sprintf("receipt gross %s does not match banking transaction %d amount %s",
				l.GrossAmount.StringFixed(2), l.BankingTransactionID, bank.StringFixed(2)),
			ptr(bank), ptr(l.GrossAmount)))
	}
	return out
}

// IncludedGST returns the GST contained in a gross amount at rate, rounded to cents.
func IncludedGST(gross, rate decimal.Decimal) decimal.Decimal {
	return gross.Mul(rate).Div(decimal.NewFromInt(1).Add(rate)).Round(2)
}

// EvaluateGST checks the GST amount of each taxable receipt.
func EvaluateGST(receipts []model.Receipt, opts Options) []model.Finding {
	var out []model.Finding
	for _, r := range receipts {
		if r.GSTExempt {
			continue
		}
		expected := IncludedGST(r.GrossAmount, opts.GSTRate)
		if opts.equal(expected, r.GSTAmount) {
			continue
		}
		out = append(out, newFinding(CheckReceiptGST, "receipt", strconv.FormatInt(r.ID, 10),
			fmt.Sprintf("GST on gross %s should be %s, receipt has %s",
				r.GrossAmount.StringFixed(2), expected.StringFixed(2), r.GSTAmount.StringFixed(2)),
			ptr(expected), ptr(r.GSTAmount)))
	}
	return out
}

package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowlimo/alms/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func allChecks(t *testing.T) CheckSet {
	t.Helper()
	set, err := ParseChecks(nil)
	require.NoError(t, err)
	return set
}

func ledger(total, paid, balance, charges, payments string, nCharges int) model.CharterLedger {
	return model.CharterLedger{
		Charter: model.Charter{
			ID: 1, ReserveNumber: "019233",
			TotalAmountDue: d(total), PaidAmount: d(paid), Balance: d(balance),
		},
		ChargeSum: d(charges), ChargeCount: nCharges,
		PaymentSum: d(payments), PaymentCount: 1,
	}
}

func checkNames(fs []model.Finding) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Check
	}
	return out
}

func TestParseChecks(t *testing.T) {
	set, err := ParseChecks([]string{"balance, paid_amount"})
	require.NoError(t, err)
	assert.Equal(t, []string{CheckPaidAmount, CheckBalance}, set.Names())

	_, err = ParseChecks([]string{"bogus"})
	assert.Error(t, err)

	_, err = ParseChecks([]string{" , "})
	assert.Error(t, err)

	assert.Len(t, allChecks(t).Names(), len(Catalog()))
}

func TestEvaluateCharter_Consistent(t *testing.T) {
	fs, fix := EvaluateCharter(ledger("300", "100", "200", "300", "100", 2), allChecks(t), DefaultOptions())
	assert.Empty(t, fs)
	assert.True(t, fix.Empty())
}

func TestEvaluateCharter_ToleranceAbsorbsOneCent(t *testing.T) {
	fs, _ := EvaluateCharter(ledger("300.00", "100", "200.01", "300.01", "100", 2), allChecks(t), DefaultOptions())
	assert.Empty(t, fs)
}

func TestEvaluateCharter_FixesChainIntoBalance(t *testing.T) {
	// Stored balance agrees with stored totals, but both totals are wrong.
	l := ledger("250", "50", "200", "300", "120", 3)
	fs, fix := EvaluateCharter(l, allChecks(t), DefaultOptions())

	assert.Equal(t, []string{CheckChargeTotal, CheckPaidAmount, CheckBalance}, checkNames(fs))
	assert.True(t, fix.SyncTotalAmountDue)
	assert.True(t, fix.SyncPaidAmount)
	assert.True(t, fix.RecomputeBalance)
	assert.True(t, fs[2].Expected.Equal(d("180")))
}

func TestEvaluateCharter_OnlySelectedChecks(t *testing.T) {
	set, err := ParseChecks([]string{CheckBalance})
	require.NoError(t, err)
	l := ledger("250", "50", "100", "300", "120", 3)
	fs, fix := EvaluateCharter(l, set, DefaultOptions())

	assert.Equal(t, []string{CheckBalance}, checkNames(fs))
	assert.False(t, fix.SyncTotalAmountDue)
	assert.True(t, fs[0].Expected.Equal(d("200")))
}

func TestEvaluateCharter_MissingChargesAndOverpaid(t *testing.T) {
	l := ledger("100", "150", "-50", "0", "150", 0)
	fs, fix := EvaluateCharter(l, allChecks(t), DefaultOptions())
	assert.Equal(t, []string{CheckMissingCharges, CheckOverpaid}, checkNames(fs))
	assert.True(t, fix.Empty())
	assert.Equal(t, model.SeverityWarning, fs[0].Severity)
	assert.False(t, fs[0].Fixable)
}

func TestEvaluateCharter_CancelledWithBalance(t *testing.T) {
	l := ledger("100", "40", "60", "100", "40", 1)
	l.Cancelled = true
	fs, _ := EvaluateCharter(l, allChecks(t), DefaultOptions())
	assert.Equal(t, []string{CheckCancelledBalance}, checkNames(fs))

	l.PaidAmount, l.PaymentSum, l.Balance = d("150"), d("150"), d("-50")
	fs, _ = EvaluateCharter(l, allChecks(t), DefaultOptions())
	assert.Empty(t, fs, "cancelled charters may be overpaid pending refund")
}

func TestEvaluatePaymentGroups(t *testing.T) {
	groups := []model.PaymentGroup{{ReserveNumber: "X1", Amount: d("50"), PaymentIDs: []int64{4, 9}, PaymentDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}}

	orphans := EvaluateOrphans(groups)
	require.Len(t, orphans, 1)
	assert.Equal(t, "X1", orphans[0].EntityKey)
	assert.Equal(t, model.SeverityError, orphans[0].Severity)
	assert.Contains(t, orphans[0].Message, "4,9")

	dups := EvaluateDuplicates(groups)
	require.Len(t, dups, 1)
	assert.Equal(t, "4,9", dups[0].EntityKey)

	links := EvaluatePaymentLinks([]model.UnlinkedPayment{{PaymentID: 7, ReserveNumber: "X1", CharterID: 3}})
	require.Len(t, links, 1)
	assert.True(t, links[0].Fixable)
	assert.Equal(t, model.SeverityInfo, links[0].Severity)
}

func TestEvaluateReceiptLinks(t *testing.T) {
	links := []model.ReceiptLink{
		{ReceiptID: 1, GrossAmount: d("45.10"), BankingTransactionID: 10, DebitAmount: d("45.10")},
		{ReceiptID: 2, GrossAmount: d("20.00"), BankingTransactionID: 11, DebitAmount: d("25.00")},
		{ReceiptID: 3, GrossAmount: d("12.00"), BankingTransactionID: 12, CreditAmount: d("12.00")},
	}
	fs := EvaluateReceiptLinks(links, DefaultOptions())
	require.Len(t, fs, 1)
	assert.Equal(t, "2", fs[0].EntityKey)
}

func TestIncludedGST(t *testing.T) {
	assert.Equal(t, "5.00", IncludedGST(d("105.00"), d("0.05")).StringFixed(2))
	assert.Equal(t, "2.15", IncludedGST(d("45.10"), d("0.05")).StringFixed(2))
}

func TestEvaluateGST(t *testing.T) {
	receipts := []model.Receipt{
		{ID: 1, GrossAmount: d("105.00"), GSTAmount: d("5.00")},
		{ID: 2, GrossAmount: d("105.00"), GSTAmount: d("0")},
		{ID: 3, GrossAmount: d("105.00"), GSTAmount: d("0"), GSTExempt: true},
	}
	fs := EvaluateGST(receipts, DefaultOptions())
	require.Len(t, fs, 1)
	assert.Equal(t, "2", fs[0].EntityKey)
	assert.True(t, fs[0].Expected.Equal(d("5")))
}

package storage_test

import (
	"context"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/storage"
	"github.com/arrowlimo/alms/internal/testutil"
	"github.com/arrowlimo/alms/migrations"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	ctx := context.Background()
	db, err := tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}
	testDB = db

	code := m.Run()
	testDB.Close(ctx)
	tc.Terminate()
	os.Exit(code)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func uniqueReserve() string { return "R" + uuid.NewString()[:8] }

func seedCharter(t *testing.T, total, paid, balance string) model.Charter {
	t.Helper()
	c, err := testDB.CreateCharter(context.Background(), model.Charter{
		ReserveNumber:  uniqueReserve(),
		ClientName:     "Test Client",
		CharterDate:    day("2024-03-15"),
		TotalAmountDue: d(total),
		PaidAmount:     d(paid),
		Balance:        d(balance),
	})
	require.NoError(t, err)
	return c
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	applied, err := testDB.RunMigrations(ctx, migrations.FS)
	require.NoError(t, err)
	assert.Empty(t, applied)

	status, err := testDB.MigrationStatus(ctx, migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, status)
	for _, s := range status {
		assert.True(t, s.Applied, s.Version)
		assert.False(t, s.Drifted, s.Version)
	}
}

func TestMigrationFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	bad := fstest.MapFS{
		"900_ok.sql":  {Data: []byte(`CREATE TABLE mig_probe (id INT);`)},
		"901_bad.sql": {Data: []byte(`CREATE TABLE mig_probe2 (id INT); SELECT * FROM no_such_table;`)},
	}
	applied, err := testDB.RunMigrations(ctx, migrations.FS, bad)
	require.Error(t, err)
	assert.Equal(t, []string{"900_ok.sql"}, applied)

	_, err = testDB.ListColumns(ctx, "mig_probe2")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	status, err := testDB.MigrationStatus(ctx, migrations.FS, bad)
	require.NoError(t, err)
	byVersion := map[string]storage.MigrationStatus{}
	for _, s := range status {
		byVersion[s.Version] = s
	}
	assert.True(t, byVersion["900_ok.sql"].Applied)
	assert.False(t, byVersion["901_bad.sql"].Applied)

	changed := fstest.MapFS{"900_ok.sql": {Data: []byte(`CREATE TABLE mig_probe (id BIGINT);`)}}
	status, err = testDB.MigrationStatus(ctx, migrations.FS, changed)
	require.NoError(t, err)
	for _, s := range status {
		if s.Version == "900_ok.sql" {
			assert.True(t, s.Drifted)
		}
	}
}

func TestCharterLedgerAggregates(t *testing.T) {
	ctx := context.Background()
	c := seedCharter(t, "300.00", "0", "300.00")
	_, err := testDB.AddCharge(ctx, model.Charge{CharterID: c.ID, Description: "Base", Amount: d("250.00")})
	require.NoError(t, err)
	_, err = testDB.AddCharge(ctx, model.Charge{CharterID: c.ID, Description: "Gratuity", Amount: d("50.00")})
	require.NoError(t, err)
	_, err = testDB.AddPayment(ctx, model.Payment{ReserveNumber: c.ReserveNumber, Amount: d("100.00"), PaymentDate: day("2024-03-01"), Method: "visa"})
	require.NoError(t, err)

	ledgers, err := testDB.CharterLedgers(ctx, &c.ReserveNumber)
	require.NoError(t, err)
	require.Len(t, ledgers, 1)
	l := ledgers[0]
	assert.True(t, l.ChargeSum.Equal(d("300")))
	assert.Equal(t, 2, l.ChargeCount)
	assert.True(t, l.PaymentSum.Equal(d("100")))
	assert.Equal(t, 1, l.PaymentCount)

	detail, err := testDB.GetCharterDetail(ctx, c.ReserveNumber)
	require.NoError(t, err)
	assert.Len(t, detail.Charges, 2)
	assert.Len(t, detail.Payments, 1)

	_, err = testDB.GetCharterDetail(ctx, "does-not-exist")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplyCharterFixWritesAudit(t *testing.T) {
	ctx := context.Background()
	c := seedCharter(t, "100.00", "0", "100.00")
	_, err := testDB.AddCharge(ctx, model.Charge{CharterID: c.ID, Description: "Base", Amount: d("150.00")})
	require.NoError(t, err)
	_, err = testDB.AddPayment(ctx, model.Payment{ReserveNumber: c.ReserveNumber, Amount: d("40.00"), PaymentDate: day("2024-03-01"), Method: "visa"})
	require.NoError(t, err)
	runID := uuid.New()

	out, err := testDB.ApplyCharterFix(ctx, runID, "tester", storage.CharterFix{
		CharterID:          c.ID,
		ReserveNumber:      c.ReserveNumber,
		SyncTotalAmountDue: true,
		SyncPaidAmount:     true,
		RecomputeBalance:   true,
	})
	require.NoError(t, err)
	assert.True(t, out.TotalAmountDue.Equal(d("150.00")))
	assert.True(t, out.PaidAmount.Equal(d("40.00")))
	assert.True(t, out.Balance.Equal(d("110.00")))

	n, err := testDB.CountMutationAudits(ctx, "charter", itoa(c.ID))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Nothing left to change: no further audit rows.
	_, err = testDB.ApplyCharterFix(ctx, runID, "tester", storage.CharterFix{
		CharterID: c.ID, SyncTotalAmountDue: true, SyncPaidAmount: true, RecomputeBalance: true,
	})
	require.NoError(t, err)
	n, err = testDB.CountMutationAudits(ctx, "charter", itoa(c.ID))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = testDB.ApplyCharterFix(ctx, runID, "tester", storage.CharterFix{CharterID: -1, RecomputeBalance: true})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplyCharterFixSeesPaymentsAfterSnapshot(t *testing.T) {
	ctx := context.Background()
	c := seedCharter(t, "200.00", "0", "200.00")
	_, err := testDB.AddPayment(ctx, model.Payment{ReserveNumber: c.ReserveNumber, Amount: d("40.00"), PaymentDate: day("2024-03-01"), Method: "visa"})
	require.NoError(t, err)

	ledgers, err := testDB.CharterLedgers(ctx, &c.ReserveNumber)
	require.NoError(t, err)
	require.Len(t, ledgers, 1)
	require.True(t, ledgers[0].PaymentSum.Equal(d("40.00")))

	_, err = testDB.AddPayment(ctx, model.Payment{ReserveNumber: c.ReserveNumber, Amount: d("60.00"), PaymentDate: day("2024-03-02"), Method: "cash"})
	require.NoError(t, err)

	out, err := testDB.ApplyCharterFix(ctx, uuid.New(), "tester", storage.CharterFix{
		CharterID: c.ID, ReserveNumber: c.ReserveNumber, SyncPaidAmount: true, RecomputeBalance: true,
	})
	require.NoError(t, err)
	assert.True(t, out.PaidAmount.Equal(d("100.00")), "paid_amount %s", out.PaidAmount)
	assert.True(t, out.Balance.Equal(d("100.00")), "balance %s", out.Balance)
}

func TestCompleteRunRecordsError(t *testing.T) {
	ctx := context.Background()
	run := model.ReconciliationRun{ID: uuid.New(), Mode: model.RunModeAudit, StartedBy: "tester", StartedAt: time.Now().UTC()}
	require.NoError(t, testDB.CreateRun(ctx, run))

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Error = "reconcile: load data: connection reset"
	require.NoError(t, testDB.CompleteRun(ctx, run))

	got, err := testDB.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, run.Error, got.Error)
}

func TestPaymentAnomalies(t *testing.T) {
	ctx := context.Background()
	orphan := uniqueReserve()
	_, err := testDB.AddPayment(ctx, model.Payment{ReserveNumber: orphan, Amount: d("20"), PaymentDate: day("2024-01-02")})
	require.NoError(t, err)
	_, err = testDB.AddPayment(ctx, model.Payment{ReserveNumber: orphan, Amount: d("30"), PaymentDate: day("2024-01-01")})
	require.NoError(t, err)

	groups, err := testDB.OrphanPayments(ctx, &orphan)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].Amount.Equal(d("50")))
	assert.Len(t, groups[0].PaymentIDs, 2)
	assert.Equal(t, day("2024-01-01"), groups[0].PaymentDate.UTC())

	c := seedCharter(t, "0", "0", "0")
	for range 2 {
		_, err = testDB.AddPayment(ctx, model.Payment{ReserveNumber: c.ReserveNumber, Amount: d("75"), PaymentDate: day("2024-02-02"), Method: "cash"})
		require.NoError(t, err)
	}
	dups, err := testDB.DuplicatePaymentGroups(ctx, &c.ReserveNumber)
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Len(t, dups[0].PaymentIDs, 2)

	unlinked, err := testDB.UnlinkedChartedPayments(ctx, &c.ReserveNumber)
	require.NoError(t, err)
	require.Len(t, unlinked, 2)
	require.NoError(t, testDB.LinkPaymentToCharter(ctx, uuid.New(), "tester", unlinked[0]))

	unlinked, err = testDB.UnlinkedChartedPayments(ctx, &c.ReserveNumber)
	require.NoError(t, err)
	assert.Len(t, unlinked, 1)
}

func TestImportTransactionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	account := "ACCT-" + uuid.NewString()[:6]
	txns := []model.BankingTransaction{
		{AccountNumber: account, TransactionDate: day("2024-04-01"), Description: "FUEL", DebitAmount: d("60.00"), SourceHash: uuid.NewString()},
		{AccountNumber: account, TransactionDate: day("2024-04-02"), Description: "DEPOSIT", CreditAmount: d("500.00"), SourceHash: uuid.NewString()},
	}

	batch, err := testDB.ImportTransactions(ctx, model.ImportBatch{ID: uuid.New(), AccountNumber: account, SourceFile: "a.csv", Format: "csv"}, txns)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.InsertedCount)
	assert.Equal(t, 0, batch.DuplicateCount)

	batch, err = testDB.ImportTransactions(ctx, model.ImportBatch{ID: uuid.New(), AccountNumber: account, SourceFile: "a.csv", Format: "csv"}, txns)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.InsertedCount)
	assert.Equal(t, 2, batch.DuplicateCount)

	n, err := testDB.CountBankingTransactions(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLinkReceiptOnlyOnce(t *testing.T) {
	ctx := context.Background()
	txns := []model.BankingTransaction{
		{AccountNumber: "LINK", TransactionDate: day("2030-01-05"), Description: "SHELL", DebitAmount: d("45.10"), SourceHash: uuid.NewString()},
	}
	_, err := testDB.ImportTransactions(ctx, model.ImportBatch{ID: uuid.New(), AccountNumber: "LINK", SourceFile: "b.csv", Format: "csv"}, txns)
	require.NoError(t, err)

	debits, err := testDB.UnmatchedDebits(ctx, model.DateRange{From: day("2030-01-01"), To: day("2030-01-31")})
	require.NoError(t, err)
	require.Len(t, debits, 1)

	r1, err := testDB.CreateReceipt(ctx, model.Receipt{ReceiptDate: day("2030-01-05"), VendorName: "Shell", GrossAmount: d("45.10")})
	require.NoError(t, err)
	r2, err := testDB.CreateReceipt(ctx, model.Receipt{ReceiptDate: day("2030-01-05"), VendorName: "Shell", GrossAmount: d("45.10")})
	require.NoError(t, err)

	require.NoError(t, testDB.LinkReceipt(ctx, "tester", r1.ID, debits[0].ID))
	assert.ErrorIs(t, testDB.LinkReceipt(ctx, "tester", r1.ID, debits[0].ID), storage.ErrAlreadyLinked)
	assert.ErrorIs(t, testDB.LinkReceipt(ctx, "tester", r2.ID, debits[0].ID), storage.ErrAlreadyLinked)

	debits, err = testDB.UnmatchedDebits(ctx, model.DateRange{From: day("2030-01-01"), To: day("2030-01-31")})
	require.NoError(t, err)
	assert.Empty(t, debits)
}

func TestApplyVendorAliases(t *testing.T) {
	ctx := context.Background()
	_, err := testDB.CreateReceipt(ctx, model.Receipt{ReceiptDate: day("2024-05-01"), VendorName: "Fas Gas #12", GrossAmount: d("10")})
	require.NoError(t, err)

	updated, err := testDB.ApplyVendorAliases(ctx, "tester", []model.VendorAlias{{Alias: "Fas Gas #12", Canonical: "FAS GAS"}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, updated, int64(1))

	updated, err = testDB.ApplyVendorAliases(ctx, "tester", []model.VendorAlias{{Alias: "Fas Gas #12", Canonical: "FAS GAS"}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	name := "user-" + uuid.NewString()[:8]
	u, err := testDB.CreateUser(ctx, name, "hash", model.RoleBookkeeper)
	require.NoError(t, err)
	assert.Equal(t, model.RoleBookkeeper, u.Role)

	_, err = testDB.CreateUser(ctx, name, "hash", model.RoleViewer)
	assert.ErrorIs(t, err, storage.ErrUserExists)

	require.NoError(t, testDB.SetPasswordHash(ctx, name, "hash2"))
	require.NoError(t, testDB.TouchLastLogin(ctx, u.ID))
	got, err := testDB.GetUserByUsername(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "hash2", got.PasswordHash)
	assert.NotNil(t, got.LastLoginAt)

	assert.ErrorIs(t, testDB.SetPasswordHash(ctx, "nobody-"+name, "x"), storage.ErrNotFound)
}

func TestRunsAndFindings(t *testing.T) {
	ctx := context.Background()
	run := model.ReconciliationRun{ID: uuid.New(), Mode: model.RunModeAudit, Checks: []string{"balance"}, StartedBy: "tester", StartedAt: time.Now().UTC()}
	require.NoError(t, testDB.CreateRun(ctx, run))

	exp, act := d("10"), d("12")
	findings := []model.Finding{{
		ID: uuid.New(), RunID: run.ID, Check: "balance", Severity: model.SeverityError,
		EntityType: "charter", EntityKey: "R1", Expected: &exp, Actual: &act, Message: "mismatch", Fixable: true,
	}}
	require.NoError(t, testDB.InsertFindings(ctx, findings))

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.FindingsCount = 1
	require.NoError(t, testDB.CompleteRun(ctx, run))

	got, err := testDB.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FindingsCount)
	assert.NotNil(t, got.CompletedAt)

	list, err := testDB.ListFindings(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Expected.Equal(exp))

	_, err = testDB.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSchemaInspection(t *testing.T) {
	ctx := context.Background()
	tables, err := testDB.ListTables(ctx)
	require.NoError(t, err)
	names := make([]string, len(tables))
	for i, tbl := range tables {
		names[i] = tbl.Name
	}
	assert.Contains(t, names, "charters")
	assert.Contains(t, names, "banking_transactions")

	cols, err := testDB.ListColumns(ctx, "receipts")
	require.NoError(t, err)
	assert.Equal(t, "receipt_id", cols[0].Name)

	_, err = testDB.ListColumns(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMonthlyTotals(t *testing.T) {
	ctx := context.Background()
	r := model.DateRange{From: day("2031-06-01"), To: day("2031-06-30")}
	_, err := testDB.CreateReceipt(ctx, model.Receipt{ReceiptDate: day("2031-06-10"), GrossAmount: d("105.00"), GSTAmount: d("5.00")})
	require.NoError(t, err)

	months, err := testDB.MonthlyExpenses(ctx, r)
	require.NoError(t, err)
	require.Len(t, months, 1)
	assert.True(t, months[0].Amount.Equal(d("105")))
	assert.True(t, months[0].GST.Equal(d("5")))
}

func TestNotify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.True(t, testDB.HasNotifyConn())
	require.NoError(t, testDB.Listen(ctx, storage.ChannelRuns))
	require.NoError(t, testDB.Notify(ctx, storage.ChannelRuns, `{"ok":true}`))

	ch, payload, err := testDB.WaitForNotification(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.ChannelRuns, ch)
	assert.JSONEq(t, `{"ok":true}`, payload)
}

func itoa(n int64) string { return decimal.NewFromInt(n).String() }

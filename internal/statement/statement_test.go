package statement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/arrowlimo/alms/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"12.34":       "12.34",
		"$1,234.50":   "1234.5",
		"(45.00)":     "-45",
		"45.00-":      "-45",
		"-$7.25":      "-7.25",
		"$-7.25":      "-7.25",
		"":            "0",
		" 1,000 ":     "1000",
		"($2,000.01)": "-2000.01",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(d(want)), "%q: got %s want %s", in, got, want)
	}

	for _, bad := range []string{"abc", "$", "5-5", "1.2.3"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDate(t *testing.T) {
	want := date(2024, time.March, 5)
	for _, in := range []string{"2024-03-05", "03/05/2024", "Mar 5, 2024", "05-Mar-2024", "2024-03-05 00:00:00"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDate("yesterday")
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	f, err := DetectFormat("/tmp/Statement.PDF")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	_, err = DetectFormat("statement.ofx")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ParseFormat("qif")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

const sampleCSV = "\xEF\xBB\xBFAccount,0228362\n" +
	"Period,March 2024\n" +
	"\n" +
	"Date,Description,Withdrawals ($),Deposits ($),Balance\n" +
	"2024-03-01,Opening Balance,,,\"1,000.00\"\n" +
	"2024-03-01,POS PURCHASE SHELL #221 AB,45.10,,954.90\n" +
	"2024-03-01,POS PURCHASE SHELL #221 AB,45.10,,909.80\n" +
	"03/02/2024,DEPOSIT CHARTER 019233,,\"1,200.00\",\"2,109.80\"\n" +
	"bad-date,Mystery,1.00,,\n" +
	"2024-03-03,Both columns,1.00,2.00,\n" +
	",Total,90.20,1200.00,\n"

func TestParseCSV(t *testing.T) {
	st, err := Parse(strings.NewReader(sampleCSV), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, st.Format)
	require.Len(t, st.Transactions, 3)

	first := st.Transactions[0]
	assert.Equal(t, date(2024, time.March, 1), first.Date)
	assert.True(t, first.Debit.Equal(d("45.10")))
	assert.True(t, first.Credit.IsZero())
	require.NotNil(t, first.Balance)
	assert.True(t, first.Balance.Equal(d("954.90")))

	dep := st.Transactions[2]
	assert.True(t, dep.Credit.Equal(d("1200")))
	assert.Equal(t, date(2024, time.March, 2), dep.Date)

	require.Len(t, st.Errors, 2)
	assert.Equal(t, 9, st.Errors[0].Line)
	assert.Equal(t, 10, st.Errors[1].Line)
}

func TestParseCSVSignedAmountColumn(t *testing.T) {
	in := "Posting Date,Details,Amount\n2024-01-05,Fuel,-60.00\n2024-01-06,E-Transfer,(10.00)\n2024-01-07,Deposit,250.00\n"
	st, err := Parse(strings.NewReader(in), FormatCSV)
	require.NoError(t, err)
	require.Len(t, st.Transactions, 3)
	assert.True(t, st.Transactions[0].Debit.Equal(d("60")))
	assert.True(t, st.Transactions[1].Debit.Equal(d("10")))
	assert.True(t, st.Transactions[2].Credit.Equal(d("250")))
}

func TestParseCSVWithoutHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("a,b,c\n1,2,3\n"), FormatCSV)
	assert.Error(t, err)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"CIBC Business Operating"},
		{"Transaction Date", "Description", "Debit", "Credit"},
		{"2024-02-10", "FAS GAS #12", "30.00", ""},
		{"2024-02-11", "DEPOSIT", "", "500.00"},
	}
	for i, r := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow(sheet, cellName, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	st, err := Parse(bytes.NewReader(buf.Bytes()), FormatXLSX)
	require.NoError(t, err)
	require.Len(t, st.Transactions, 2)
	assert.True(t, st.Transactions[0].Debit.Equal(d("30")))
	assert.True(t, st.Transactions[1].Credit.Equal(d("500")))
	assert.Equal(t, 3, st.Transactions[0].Line)
}

func TestParsePDFLines(t *testing.T) {
	lines := []string{
		"Business Account Statement",
		"Statement Period: Jan 01, 2024 to Jan 31, 2024",
		"Opening Balance $1,000.00",
		"12/30 PURCHASE CO-OP GAS BAR 50.00 950.00",
		"01/02 E-TRANSFER 019233 200.00 1,150.00",
		"01/03 SERVICE CHARGE 5.00",
		"01/04 REFUND STAPLES 12.00",
		"02/30 BAD DATE 1.00",
		"Closing Balance 1,157.00",
	}
	st, err := parsePDFLines(lines)
	require.NoError(t, err)
	require.Len(t, st.Transactions, 4)

	assert.Equal(t, date(2023, time.December, 30), st.Transactions[0].Date)
	assert.True(t, st.Transactions[0].Debit.Equal(d("50")))
	assert.True(t, st.Transactions[1].Credit.Equal(d("200")), "balance increase marks a credit")
	assert.True(t, st.Transactions[2].Debit.Equal(d("5")))
	assert.True(t, st.Transactions[3].Credit.Equal(d("12")), "refund keyword marks a credit")
	require.Len(t, st.Errors, 1)
	assert.Equal(t, 8, st.Errors[0].Line)
}

func TestParsePDFLinesNeedsPeriod(t *testing.T) {
	_, err := parsePDFLines([]string{"01/02 SOMETHING 1.00"})
	assert.Error(t, err)
}

func TestStatementDateDecemberStatement(t *testing.T) {
	got, err := statementDate(2023, time.December, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 2), got)
}

func TestFingerprints(t *testing.T) {
	tx := Transaction{Date: date(2024, 3, 1), Description: "SHELL", Debit: d("45.10")}
	hashes := Fingerprints("0228362", []Transaction{tx, tx})
	assert.NotEqual(t, hashes[0], hashes[1], "identical rows in one statement stay distinct")
	assert.Equal(t, hashes, Fingerprints("0228362", []Transaction{tx, tx}), "re-import is stable")
	assert.NotEqual(t, hashes[0], Fingerprints("9999999", []Transaction{tx})[0])

	// Field boundaries are length-prefixed.
	a := Transaction{Date: date(2024, 3, 1), Description: "AB", Debit: d("1")}
	assert.NotEqual(t, Fingerprint("X", a, 0), Fingerprint("XA", Transaction{Date: a.Date, Description: "B", Debit: d("1")}, 0))
}

func TestExtractVendor(t *testing.T) {
	cases := map[string]string{
		"POINT OF SALE - INTERAC RETAIL PURCHASE 000001234567 CO-OP GAS BAR": "CO-OP GAS BAR",
		"VISA DEBIT PURCHASE ****1234 STAPLES #245 AB":                       "STAPLES",
		"Pos Purchase  Canadian Tire":                                        "CANADIAN TIRE",
		"DEPOSIT":                                                            "DEPOSIT",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractVendor(in), in)
	}
}

type fakeImportStore struct {
	hashes map[string]bool
	calls  int
}

func (f *fakeImportStore) ImportTransactions(_ context.Context, b model.ImportBatch, txns []model.BankingTransaction) (model.ImportBatch, error) {
	f.calls++
	if f.hashes == nil {
		f.hashes = map[string]bool{}
	}
	for _, t := range txns {
		if f.hashes[t.SourceHash] {
			b.DuplicateCount++
			continue
		}
		f.hashes[t.SourceHash] = true
		b.InsertedCount++
	}
	return b, nil
}

func TestImporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "march.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	store := &fakeImportStore{}
	im := NewImporter(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	dry, err := im.ImportFile(ctx, path, ImportOptions{Account: "0228362", DryRun: true})
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Zero(t, store.calls)
	assert.Len(t, dry.Transactions, 3)
	assert.Equal(t, "SHELL", dry.Transactions[0].VendorExtracted)

	first, err := im.ImportFile(ctx, path, ImportOptions{Account: "0228362"})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Batch.InsertedCount)
	assert.Equal(t, "march.csv", first.Batch.SourceFile)

	second, err := im.ImportFile(ctx, path, ImportOptions{Account: "0228362"})
	require.NoError(t, err)
	assert.Zero(t, second.Batch.InsertedCount)
	assert.Equal(t, 3, second.Batch.DuplicateCount)

	_, err = im.ImportFile(ctx, path, ImportOptions{})
	assert.Error(t, err)
}

func TestRowErrorJSON(t *testing.T) {
	b, err := json.Marshal(RowError{Line: 7, Err: errors.New("bad amount \"abc\"")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"line":7,"error":"bad amount \"abc\""}`, string(b))

	st, err := Parse(strings.NewReader("Date,Description,Withdrawal,Deposit\n"+
		"2024-03-01,SHELL,45.10,\n"+
		"2024-03-03,CHEQUE 101,abc,\n"), FormatCSV)
	require.NoError(t, err)
	require.Len(t, st.Errors, 1)
	b, err = json.Marshal(ImportResult{RowErrors: st.Errors, DryRun: true})
	require.NoError(t, err)

	var out struct {
		RowErrors []struct {
			Line  int    `json:"line"`
			Error string `json:"error"`
		} `json:"row_errors"`
	}
	require.NoError(t, json.Unmarshal(b, &out))
	require.Len(t, out.RowErrors, 1)
	assert.Equal(t, 3, out.RowErrors[0].Line)
	assert.NotEmpty(t, out.RowErrors[0].Error)
}

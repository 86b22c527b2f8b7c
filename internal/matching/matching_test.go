package matching

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/storage"
)

func day(d int) time.Time { return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC) }

func receipt(id int64, d int, vendor, amount string) model.Receipt {
	return model.Receipt{ID: id, ReceiptDate: day(d), VendorName: vendor, GrossAmount: decimal.RequireFromString(amount)}
}

func debit(id int64, d int, desc, amount string) model.BankingTransaction {
	return model.BankingTransaction{ID: id, TransactionDate: day(d), Description: desc, DebitAmount: decimal.RequireFromString(amount)}
}

func TestMatchAssignsOneToOne(t *testing.T) {
	receipts := []model.Receipt{
		receipt(1, 1, "Shell", "50.00"),
		receipt(2, 2, "Staples", "50.00"),
		receipt(3, 10, "Costco", "99.99"),
	}
	debits := []model.BankingTransaction{
		debit(10, 1, "SHELL #221", "50.00"),
		debit(11, 2, "STAPLES", "50.00"),
		debit(12, 20, "COSTCO", "99.99"),
		debit(13, 3, "SHELL", "12.00"),
	}
	res := Assign(receipts, debits, DefaultOptions())

	require.Len(t, res.Matches, 2)
	assert.Equal(t, int64(10), res.Matches[0].TransactionID)
	assert.Equal(t, int64(11), res.Matches[1].TransactionID)
	assert.InDelta(t, 1.0, res.Matches[0].Score, 1e-9)
	require.Len(t, res.UnmatchedReceipts, 1)
	assert.Equal(t, int64(3), res.UnmatchedReceipts[0].ID, "outside the window")
	assert.Len(t, res.UnmatchedDebits, 2)
}

func TestMatchPrefersCloserDate(t *testing.T) {
	receipts := []model.Receipt{receipt(1, 5, "Esso", "80.00")}
	debits := []model.BankingTransaction{
		debit(20, 7, "ESSO", "80.00"),
		debit(21, 5, "ESSO", "80.00"),
	}
	res := Assign(receipts, debits, DefaultOptions())
	require.Len(t, res.Matches, 1)
	assert.Equal(t, int64(21), res.Matches[0].TransactionID)
	assert.Equal(t, 0, res.Matches[0].DayGap)
}

func TestMatchTieGoesToLowerID(t *testing.T) {
	receipts := []model.Receipt{receipt(1, 5, "Esso", "80.00")}
	debits := []model.BankingTransaction{
		debit(31, 5, "ESSO", "80.00"),
		debit(30, 5, "ESSO", "80.00"),
	}
	res := Assign(receipts, debits, DefaultOptions())
	require.Len(t, res.Matches, 1)
	assert.Equal(t, int64(30), res.Matches[0].TransactionID)
}

func TestMatchAmountTolerance(t *testing.T) {
	debits := []model.BankingTransaction{debit(1, 1, "X", "50.00")}
	assert.Len(t, Assign([]model.Receipt{receipt(1, 1, "X", "50.01")}, debits, DefaultOptions()).Matches, 1)
	assert.Empty(t, Assign([]model.Receipt{receipt(1, 1, "X", "50.02")}, debits, DefaultOptions()).Matches)
}

func TestMatchZeroWindowRequiresSameDay(t *testing.T) {
	opts := DefaultOptions()
	opts.Window = 0
	debits := []model.BankingTransaction{debit(1, 2, "X", "5.00")}
	assert.Empty(t, Assign([]model.Receipt{receipt(1, 1, "X", "5.00")}, debits, opts).Matches)
	assert.Len(t, Assign([]model.Receipt{receipt(1, 2, "X", "5.00")}, debits, opts).Matches, 1)
}

type fakeStore struct {
	receipts []model.Receipt
	debits   []model.BankingTransaction
	taken    map[int64]bool
	links    map[int64]int64
}

func (f *fakeStore) UnlinkedReceipts(context.Context, model.DateRange) ([]model.Receipt, error) {
	return f.receipts, nil
}

func (f *fakeStore) UnmatchedDebits(context.Context, model.DateRange) ([]model.BankingTransaction, error) {
	return f.debits, nil
}

func (f *fakeStore) LinkReceipt(_ context.Context, _ string, receiptID, txnID int64) error {
	if f.taken[receiptID] {
		return fmt.Errorf("storage: receipt %d: %w", receiptID, storage.ErrAlreadyLinked)
	}
	f.links[receiptID] = txnID
	return nil
}

func TestServiceRun(t *testing.T) {
	store := &fakeStore{
		receipts: []model.Receipt{receipt(1, 1, "Shell", "50.00"), receipt(2, 2, "Staples", "20.00")},
		debits:   []model.BankingTransaction{debit(10, 1, "SHELL", "50.00"), debit(11, 2, "STAPLES", "20.00")},
		taken:    map[int64]bool{2: true},
		links:    map[int64]int64{},
	}
	svc := NewService(store, DefaultOptions(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	dry, err := svc.Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.Len(t, dry.Matches, 2)
	assert.Empty(t, store.links)

	out, err := svc.Run(context.Background(), Request{Apply: true, Actor: "tester"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Linked)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, map[int64]int64{1: 10}, store.links)
}

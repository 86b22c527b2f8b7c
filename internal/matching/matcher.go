// Package matching pairs unlinked receipts with the banking debits that paid them.
package matching

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/vendors"
)

const (
	dateWeight   = 0.6
	vendorWeight = 0.4
)

// Options bounds which receipt/debit pairs are candidates.
type Options struct {
	Tolerance decimal.Decimal
	Window    time.Duration
}

// DefaultOptions allows a one cent difference within three days.
func DefaultOptions() Options {
	return Options{Tolerance: decimal.RequireFromString("0.01"), Window: 72 * time.Hour}
}

// Match is one proposed receipt to debit link.
type Match struct {
	ReceiptID     int64           `json:"receipt_id"`
	TransactionID int64           `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	ReceiptDate   time.Time       `json:"receipt_date"`
	DebitDate     time.Time       `json:"transaction_date"`
	Vendor        string          `json:"vendor"`
	Description   string          `json:"description"`
	DayGap        int             `json:"day_gap"`
	Score         float64         `json:"score"`
}

// Result holds the assignment and whatever could not be paired.
type Result struct {
	Matches           []Match                    `json:"matches"`
	UnmatchedReceipts []model.Receipt            `json:"unmatched_receipts"`
	UnmatchedDebits   []model.BankingTransaction `json:"unmatched_debits"`
}

// Assign scores every candidate pair and assigns them greedily, best score
// first, so each receipt and each debit is used at most once. Ties prefer the
// smaller day gap, then the lower receipt id, then the lower transaction id.
func Assign(receipts []model.Receipt, debits []model.BankingTransaction, opts Options) Result {
	var candidates []Match
	for _, r := range receipts {
		for _, d := range debits {
			if m, ok := score(r, d, opts); ok {
				candidates = append(candidates, m)
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DayGap != b.DayGap {
			return a.DayGap < b.DayGap
		}
		if a.ReceiptID != b.ReceiptID {
			return a.ReceiptID < b.ReceiptID
		}
		return a.TransactionID < b.TransactionID
	})

	usedReceipts := map[int64]bool{}
	usedDebits := map[int64]bool{}
	res := Result{Matches: []Match{}}
	for _, c := range candidates {
		if usedReceipts[c.ReceiptID] || usedDebits[c.TransactionID] {
			continue
		}
		usedReceipts[c.ReceiptID] = true
		usedDebits[c.TransactionID] = true
		res.Matches = append(res.Matches, c)
	}
	sort.Slice(res.Matches, func(i, j int) bool { return res.Matches[i].ReceiptID < res.Matches[j].ReceiptID })

	for _, r := range receipts {
		if !usedReceipts[r.ID] {
			res.UnmatchedReceipts = append(res.UnmatchedReceipts, r)
		}
	}
	for _, d := range debits {
		if !usedDebits[d.ID] {
			res.UnmatchedDebits = append(res.UnmatchedDebits, d)
		}
	}
	return res
}

func score(r model.Receipt, d model.BankingTransaction, opts Options) (Match, bool) {
	if r.GrossAmount.Sub(d.DebitAmount).Abs().GreaterThan(opts.Tolerance) {
		return Match{}, false
	}
	gap := dayGap(r.ReceiptDate, d.TransactionDate)
	windowDays := int(opts.Window / (24 * time.Hour))
	if gap > windowDays {
		return Match{}, false
	}
	closeness := 1.0
	if windowDays > 0 {
		closeness = 1 - float64(gap)/float64(windowDays+1)
	}

	vendor := r.CanonicalVendor
	if vendor == "" {
		vendor = r.VendorName
	}
	desc := d.VendorExtracted
	if desc == "" {
		desc = d.Description
	}
	return Match{
		ReceiptID:     r.ID,
		TransactionID: d.ID,
		Amount:        d.DebitAmount,
		ReceiptDate:   r.ReceiptDate,
		DebitDate:     d.TransactionDate,
		Vendor:        vendor,
		Description:   d.Description,
		DayGap:        gap,
		Score:         dateWeight*closeness + vendorWeight*vendors.Similarity(vendor, desc),
	}, true
}

// dayGap counts calendar days between two dates regardless of time of day.
func dayGap(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := int(da.Sub(db).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// Package report builds the typed bookkeeping reports and renders them.
package report

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/arrowlimo/alms/internal/model"
)

// ErrUnknownReport is returned for a report name that is not registered.
var ErrUnknownReport = errors.New("unknown report")

// Report names.
const (
	NameCharterBalances  = "charter-balances"
	NameReceivables      = "receivables"
	NameMonthly          = "monthly"
	NameUnmatchedBanking = "unmatched-banking"
)

// Names lists every report in display order.
func Names() []string {
	return []string{NameCharterBalances, NameReceivables, NameMonthly, NameUnmatchedBanking}
}

// Report is a typed table. Columns and Rows give the flat rendering used by
// the text, CSV and XLSX renderers; JSON renders the value itself.
type Report interface {
	Name() string
	Columns() []string
	Rows() [][]string
}

// ColumnKind says how a column's cells are typed in spreadsheets.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindNumber
	KindMoney
)

// Typed is implemented by reports with numeric columns. ColumnKinds parallels
// Columns.
type Typed interface {
	ColumnKinds() []ColumnKind
}

// Store is the read side the reports query.
type Store interface {
	CharterBalances(ctx context.Context, r model.DateRange, outstandingOnly bool) ([]model.CharterBalance, error)
	MonthlyCharges(ctx context.Context, r model.DateRange) ([]model.MonthAmount, error)
	MonthlyPayments(ctx context.Context, r model.DateRange) ([]model.MonthAmount, error)
	MonthlyExpenses(ctx context.Context, r model.DateRange) ([]model.MonthAmount, error)
	UnmatchedDebits(ctx context.Context, r model.DateRange) ([]model.BankingTransaction, error)
}

// Params narrows a report. AsOf defaults to today for receivables aging.
type Params struct {
	Range model.DateRange
	// All includes settled charters in charter-balances.
	All  bool
	AsOf time.Time
}

// Generator produces reports from a Store.
type Generator struct {
	store Store
	now   func() time.Time
}

// NewGenerator creates a report generator.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// Generate builds the named report.
func (g *Generator) Generate(ctx context.Context, name string, p Params) (Report, error) {
	var (
		rep Report
		err error
	)
	switch name {
	case NameCharterBalances:
		rep, err = g.charterBalances(ctx, p)
	case NameReceivables:
		rep, err = g.receivables(ctx, p)
	case NameMonthly:
		rep, err = g.monthly(ctx, p)
	case NameUnmatchedBanking:
		rep, err = g.unmatchedBanking(ctx, p)
	default:
		return nil, fmt.Errorf("report: %q: %w (want one of %v)", name, ErrUnknownReport, Names())
	}
	if err != nil {
		return nil, fmt.Errorf("report: %s: %w", name, err)
	}
	return rep, nil
}

// CharterBalances lists charters with their amounts.
type CharterBalances struct {
	Charters []model.CharterBalance `json:"charters"`
	Total    decimal.Decimal        `json:"total_balance"`
}

func (g *Generator) charterBalances(ctx context.Context, p Params) (*CharterBalances, error) {
	rows, err := g.store.CharterBalances(ctx, p.Range, !p.All)
	if err != nil {
		return nil, err
	}
	rep := &CharterBalances{Charters: nonNil(rows)}
	for _, c := range rows {
		rep.Total = rep.Total.Add(c.Balance)
	}
	return rep, nil
}

func (*CharterBalances) Name() string { return NameCharterBalances }

func (*CharterBalances) Columns() []string {
	return []string{"reserve_number", "client", "charter_date", "total_due", "paid", "balance", "cancelled"}
}

func (*CharterBalances) ColumnKinds() []ColumnKind {
	return []ColumnKind{KindText, KindText, KindText, KindMoney, KindMoney, KindMoney, KindText}
}

func (r *CharterBalances) Rows() [][]string {
	out := make([][]string, 0, len(r.Charters)+1)
	for _, c := range r.Charters {
		out = append(out, []string{
			c.ReserveNumber, c.ClientName, date(c.CharterDate),
			money(c.TotalAmountDue), money(c.PaidAmount), money(c.Balance), yesNo(c.Cancelled),
		})
	}
	return append(out, []string{"TOTAL", "", "", "", "", money(r.Total), ""})
}

// Aging buckets by days since the charter date.
const (
	BucketCurrent = "current"
	Bucket31To60  = "31-60"
	Bucket61To90  = "61-90"
	BucketOver90  = "90+"
)

// Buckets lists the aging buckets oldest last.
func Buckets() []string { return []string{BucketCurrent, Bucket31To60, Bucket61To90, BucketOver90} }

// Bucket places an age in days into its aging bucket.
func Bucket(days int) string {
	switch {
	case days <= 30:
		return BucketCurrent
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

// AgingRow is one outstanding charter with its age.
type AgingRow struct {
	model.CharterBalance
	Days   int    `json:"days"`
	Bucket string `json:"bucket"`
}

// Receivables ages outstanding balances of active charters.
type Receivables struct {
	AsOf     time.Time                  `json:"as_of"`
	Charters []AgingRow                 `json:"charters"`
	Totals   map[string]decimal.Decimal `json:"totals"`
	Total    decimal.Decimal            `json:"total"`
}

func (g *Generator) receivables(ctx context.Context, p Params) (*Receivables, error) {
	asOf := p.AsOf
	if asOf.IsZero() {
		asOf = g.now()
	}
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := g.store.CharterBalances(ctx, p.Range, true)
	if err != nil {
		return nil, err
	}
	rep := &Receivables{AsOf: asOf, Charters: []AgingRow{}, Totals: map[string]decimal.Decimal{}}
	for _, b := range Buckets() {
		rep.Totals[b] = decimal.Zero
	}
	for _, c := range rows {
		if c.Cancelled || !c.Balance.IsPositive() {
			continue
		}
		cd := time.Date(c.CharterDate.Year(), c.CharterDate.Month(), c.CharterDate.Day(), 0, 0, 0, 0, time.UTC)
		days := max(0, int(asOf.Sub(cd).Hours()/24))
		row := AgingRow{CharterBalance: c, Days: days, Bucket: Bucket(days)}
		rep.Charters = append(rep.Charters, row)
		rep.Totals[row.Bucket] = rep.Totals[row.Bucket].Add(c.Balance)
		rep.Total = rep.Total.Add(c.Balance)
	}
	return rep, nil
}

func (*Receivables) Name() string { return NameReceivables }

func (*Receivables) Columns() []string {
	return []string{"reserve_number", "client", "charter_date", "days", "bucket", "balance"}
}

func (*Receivables) ColumnKinds() []ColumnKind {
	return []ColumnKind{KindText, KindText, KindText, KindNumber, KindText, KindMoney}
}

func (r *Receivables) Rows() [][]string {
	out := make([][]string, 0, len(r.Charters)+len(r.Totals)+1)
	for _, c := range r.Charters {
		out = append(out, []string{
			c.ReserveNumber, c.ClientName, date(c.CharterDate),
			fmt.Sprint(c.Days), c.Bucket, money(c.Balance),
		})
	}
	for _, b := range Buckets() {
		out = append(out, []string{"TOTAL " + b, "", "", "", b, money(r.Totals[b])})
	}
	return append(out, []string{"TOTAL", "", "", "", "", money(r.Total)})
}

// MonthSummary is one month of revenue and expenses.
type MonthSummary struct {
	Month    time.Time       `json:"month"`
	Revenue  decimal.Decimal `json:"revenue"`
	Payments decimal.Decimal `json:"payments"`
	Expenses decimal.Decimal `json:"expenses"`
	GSTPaid  decimal.Decimal `json:"gst_paid"`
}

// Monthly summarizes charges billed, payments received and receipt expenses by month.
type Monthly struct {
	Months []MonthSummary `json:"months"`
	Totals MonthSummary   `json:"totals"`
}

func (g *Generator) monthly(ctx context.Context, p Params) (*Monthly, error) {
	var charges, payments, expenses []model.MonthAmount
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		charges, err = g.store.MonthlyCharges(gctx, p.Range)
		return err
	})
	eg.Go(func() error {
		var err error
		payments, err = g.store.MonthlyPayments(gctx, p.Range)
		return err
	})
	eg.Go(func() error {
		var err error
		expenses, err = g.store.MonthlyExpenses(gctx, p.Range)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	byMonth := map[time.Time]*MonthSummary{}
	get := func(m time.Time) *MonthSummary {
		key := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
		s, ok := byMonth[key]
		if !ok {
			s = &MonthSummary{Month: key}
			byMonth[key] = s
		}
		return s
	}
	for _, a := range charges {
		s := get(a.Month)
		s.Revenue = s.Revenue.Add(a.Amount)
	}
	for _, a := range payments {
		s := get(a.Month)
		s.Payments = s.Payments.Add(a.Amount)
	}
	for _, a := range expenses {
		s := get(a.Month)
		s.Expenses = s.Expenses.Add(a.Amount)
		s.GSTPaid = s.GSTPaid.Add(a.GST)
	}

	rep := &Monthly{Months: make([]MonthSummary, 0, len(byMonth))}
	for _, s := range byMonth {
		rep.Months = append(rep.Months, *s)
	}
	slices.SortFunc(rep.Months, func(a, b MonthSummary) int { return a.Month.Compare(b.Month) })
	for _, s := range rep.Months {
		rep.Totals.Revenue = rep.Totals.Revenue.Add(s.Revenue)
		rep.Totals.Payments = rep.Totals.Payments.Add(s.Payments)
		rep.Totals.Expenses = rep.Totals.Expenses.Add(s.Expenses)
		rep.Totals.GSTPaid = rep.Totals.GSTPaid.Add(s.GSTPaid)
	}
	return rep, nil
}

func (*Monthly) Name() string { return NameMonthly }

func (*Monthly) Columns() []string {
	return []string{"month", "revenue", "payments", "expenses", "gst_paid", "net"}
}

func (*Monthly) ColumnKinds() []ColumnKind {
	return []ColumnKind{KindText, KindMoney, KindMoney, KindMoney, KindMoney, KindMoney}
}

func (r *Monthly) Rows() [][]string {
	row := func(label string, s MonthSummary) []string {
		return []string{label, money(s.Revenue), money(s.Payments), money(s.Expenses), money(s.GSTPaid), money(s.Revenue.Sub(s.Expenses))}
	}
	out := make([][]string, 0, len(r.Months)+1)
	for _, s := range r.Months {
		out = append(out, row(s.Month.Format("2006-01"), s))
	}
	return append(out, row("TOTAL", r.Totals))
}

// UnmatchedBanking lists debits with no linked receipt.
type UnmatchedBanking struct {
	Transactions []model.BankingTransaction `json:"transactions"`
	Total        decimal.Decimal            `json:"total"`
}

func (g *Generator) unmatchedBanking(ctx context.Context, p Params) (*UnmatchedBanking, error) {
	txns, err := g.store.UnmatchedDebits(ctx, p.Range)
	if err != nil {
		return nil, err
	}
	rep := &UnmatchedBanking{Transactions: nonNil(txns)}
	for _, t := range txns {
		rep.Total = rep.Total.Add(t.DebitAmount)
	}
	return rep, nil
}

func (*UnmatchedBanking) Name() string { return NameUnmatchedBanking }

func (*UnmatchedBanking) Columns() []string {
	return []string{"transaction_id", "account", "date", "description", "vendor", "debit"}
}

func (*UnmatchedBanking) ColumnKinds() []ColumnKind {
	return []ColumnKind{KindNumber, KindText, KindText, KindText, KindText, KindMoney}
}

func (r *UnmatchedBanking) Rows() [][]string {
	out := make([][]string, 0, len(r.Transactions)+1)
	for _, t := range r.Transactions {
		out = append(out, []string{
			fmt.Sprint(t.ID), t.AccountNumber, date(t.TransactionDate),
			t.Description, t.VendorExtracted, money(t.DebitAmount),
		})
	}
	return append(out, []string{"TOTAL", "", "", "", "", money(r.Total)})
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package statement

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// column roles recognised in a header row.
const (
	colDate = iota
	colDescription
	colDebit
	colCredit
	colAmount
	colBalance
)

var headerAliases = map[string]int{
	"date":                colDate,
	"posting date":        colDate,
	"posted date":         colDate,
	"transaction date":    colDate,
	"txn date":            colDate,
	"description":         colDescription,
	"details":             colDescription,
	"transaction details": colDescription,
	"transaction":         colDescription,
	"memo":                colDescription,
	"narration":           colDescription,
	"particulars":         colDescription,
	"debit":               colDebit,
	"debits":              colDebit,
	"withdrawal":          colDebit,
	"withdrawals":         colDebit,
	"withdrawal amt":      colDebit,
	"money out":           colDebit,
	"credit":              colCredit,
	"credits":             colCredit,
	"deposit":             colCredit,
	"deposits":            colCredit,
	"deposit amt":         colCredit,
	"money in":            colCredit,
	"amount":              colAmount,
	"transaction amount":  colAmount,
	"balance":             colBalance,
	"running balance":     colBalance,
}

// headerScanRows bounds how far into a sheet the header row is searched for;
// exports often start with account and period lines.
const headerScanRows = 15

var parenthetical = regexp.MustCompile(`\([^)]*\)`)

func normalizeHeader(h string) string {
	h = strings.ToLower(parenthetical.ReplaceAllString(h, ""))
	h = strings.Trim(strings.TrimSpace(h), ".:$")
	return strings.Join(strings.Fields(h), " ")
}

type columnMap map[int]int

// detectHeader finds the first row naming a date, a description and at least
// one amount column. It returns the row index and the role → column mapping.
func detectHeader(rows [][]string) (int, columnMap, error) {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		cols := columnMap{}
		for j, cell := range rows[i] {
			role, ok := headerAliases[normalizeHeader(cell)]
			if !ok {
				continue
			}
			if _, dup := cols[role]; !dup {
				cols[role] = j
			}
		}
		_, hasDate := cols[colDate]
		_, hasDesc := cols[colDescription]
		_, hasAmount := cols[colAmount]
		_, hasDebit := cols[colDebit]
		_, hasCredit := cols[colCredit]
		if hasDate && hasDesc && (hasAmount || hasDebit || hasCredit) {
			return i, cols, nil
		}
	}
	return 0, nil, errors.New("statement: no header row with date, description and amount columns")
}

func cell(row []string, cols columnMap, role int) string {
	j, ok := cols[role]
	if !ok || j >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[j])
}

var summaryWords = []string{"total", "opening balance", "closing balance", "balance forward", "beginning balance", "ending balance"}

// isSummary reports total and balance lines. A dated row with an amount is a
// transaction even when its description mentions a total.
func isSummary(row []string, cols columnMap) bool {
	_, dateErr := ParseDate(cell(row, cols, colDate))
	noAmount := cell(row, cols, colDebit) == "" && cell(row, cols, colCredit) == "" && cell(row, cols, colAmount) == ""
	if dateErr == nil && !noAmount {
		return false
	}
	probe := strings.ToLower(cell(row, cols, colDate) + " " + cell(row, cols, colDescription))
	for _, w := range summaryWords {
		if strings.Contains(probe, w) {
			return true
		}
	}
	return false
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseTable turns a sheet of cells (CSV records or XLSX rows) into a statement.
// lines holds the source line of each row; nil means row i is line i+1.
func parseTable(rows [][]string, lines []int) (*Statement, error) {
	hdr, cols, err := detectHeader(rows)
	if err != nil {
		return nil, err
	}
	st := &Statement{}
	for i := hdr + 1; i < len(rows); i++ {
		row := rows[i]
		line := i + 1
		if lines != nil {
			line = lines[i]
		}
		if isBlank(row) || isSummary(row, cols) {
			continue
		}
		t, err := parseTableRow(row, cols)
		if err != nil {
			st.Errors = append(st.Errors, RowError{Line: line, Err: err})
			continue
		}
		t.Line = line
		st.Transactions = append(st.Transactions, t)
	}
	return st, nil
}

func parseTableRow(row []string, cols columnMap) (Transaction, error) {
	var t Transaction
	date, err := ParseDate(cell(row, cols, colDate))
	if err != nil {
		return t, err
	}
	t.Date = date
	t.Description = strings.Join(strings.Fields(cell(row, cols, colDescription)), " ")

	if _, ok := cols[colAmount]; ok && cols.hasNoSplit() {
		amt, err := ParseAmount(cell(row, cols, colAmount))
		if err != nil {
			return t, err
		}
		if amt.IsNegative() {
			t.Debit = amt.Neg()
		} else {
			t.Credit = amt
		}
	} else {
		debit, err := ParseAmount(cell(row, cols, colDebit))
		if err != nil {
			return t, err
		}
		credit, err := ParseAmount(cell(row, cols, colCredit))
		if err != nil {
			return t, err
		}
		t.Debit, t.Credit = debit.Abs(), credit.Abs()
	}
	if t.Debit.IsZero() == t.Credit.IsZero() {
		return t, fmt.Errorf("expected exactly one of debit or credit, got %s/%s", t.Debit.StringFixed(2), t.Credit.StringFixed(2))
	}

	if raw := cell(row, cols, colBalance); raw != "" {
		bal, err := ParseAmount(raw)
		if err != nil {
			return t, err
		}
		t.Balance = &bal
	}
	return t, nil
}

func (c columnMap) hasNoSplit() bool {
	_, d := c[colDebit]
	_, cr := c[colCredit]
	return !d && !cr
}

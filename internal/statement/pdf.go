package statement

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"
)

func parsePDF(r io.Reader) (*Statement, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("statement: read pdf: %w", err)
	}
	lines, err := pdfTextLines(data)
	if err != nil {
		return nil, err
	}
	return parsePDFLines(lines)
}

// pdfTextLines extracts the plain text of every page, one slice entry per line.
func pdfTextLines(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("statement: open pdf: %w", err)
	}
	var lines []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("statement: pdf page %d: %w", i, err)
		}
		lines = append(lines, strings.Split(text, "\n")...)
	}
	return lines, nil
}

const amountPattern = `\(?-?\$?[\d,]+\.\d{2}\)?-?`

var (
	periodPattern  = regexp.MustCompile(`(?i)statement\s+period[:\s]+([a-z]+)\.?\s+\d{1,2},?\s+(\d{4})`)
	openingPattern = regexp.MustCompile(`(?i)(?:opening|beginning|previous)\s+balance\s+(` + amountPattern + `)`)
	linePattern    = regexp.MustCompile(`^(\d{2})/(\d{2})\s+(.+?)\s+(` + amountPattern + `)(?:\s+(` + amountPattern + `))?\s*$`)
	creditWords    = regexp.MustCompile(`(?i)\b(deposit|credit|refund|e-transfer received|transfer in|interest paid|reversal)\b`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// parsePDFLines parses statement text laid out as "MM/DD description amount [balance]".
// The year comes from the "Statement Period" header. When a line carries a running
// balance its movement decides debit versus credit; otherwise the description does.
func parsePDFLines(lines []string) (*Statement, error) {
	year, month := 0, time.Month(0)
	var prevBalance *decimal.Decimal
	for _, l := range lines {
		if m := periodPattern.FindStringSubmatch(l); m != nil && year == 0 {
			year, _ = strconv.Atoi(m[2])
			if len(m[1]) >= 3 {
				month = monthNames[strings.ToLower(m[1][:3])]
			}
		}
		if m := openingPattern.FindStringSubmatch(l); m != nil && prevBalance == nil {
			if b, err := ParseAmount(m[1]); err == nil {
				prevBalance = &b
			}
		}
	}
	if year == 0 {
		return nil, fmt.Errorf("statement: pdf has no statement period header")
	}

	st := &Statement{}
	for i, raw := range lines {
		l := strings.TrimSpace(raw)
		m := linePattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		line := i + 1
		desc := strings.Join(strings.Fields(m[3]), " ")
		if low := strings.ToLower(desc); strings.Contains(low, "balance forward") || strings.Contains(low, "opening balance") {
			continue
		}

		mm, _ := strconv.Atoi(m[1])
		dd, _ := strconv.Atoi(m[2])
		date, err := statementDate(year, month, mm, dd)
		if err != nil {
			st.Errors = append(st.Errors, RowError{Line: line, Err: err})
			continue
		}

		amt, err := ParseAmount(m[4])
		if err != nil {
			st.Errors = append(st.Errors, RowError{Line: line, Err: err})
			continue
		}
		t := Transaction{Line: line, Date: date, Description: desc}

		var balance *decimal.Decimal
		if m[5] != "" {
			b, err := ParseAmount(m[5])
			if err != nil {
				st.Errors = append(st.Errors, RowError{Line: line, Err: err})
				continue
			}
			balance = &b
		}

		var credit bool
		switch {
		case amt.IsNegative(): // signed amounts are debits
		case balance != nil && prevBalance != nil && balance.Sub(*prevBalance).Equal(amt):
			credit = true
		case balance != nil && prevBalance != nil && prevBalance.Sub(*balance).Equal(amt):
			credit = false
		default:
			credit = creditWords.MatchString(desc)
		}
		if credit {
			t.Credit = amt.Abs()
		} else {
			t.Debit = amt.Abs()
		}
		if t.Debit.IsZero() && t.Credit.IsZero() {
			st.Errors = append(st.Errors, RowError{Line: line, Err: fmt.Errorf("zero amount")})
			continue
		}
		t.Balance = balance
		if balance != nil {
			prevBalance = balance
		}
		st.Transactions = append(st.Transactions, t)
	}
	return st, nil
}

// statementDate resolves MM/DD against the statement period. Rows from the
// other side of a year boundary (December rows on a January statement, or
// January rows on a December statement) move to the adjacent year.
func statementDate(year int, periodMonth time.Month, mm, dd int) (time.Time, error) {
	if mm < 1 || mm > 12 {
		return time.Time{}, fmt.Errorf("invalid month %02d", mm)
	}
	switch {
	case periodMonth == time.January && mm == 12:
		year--
	case periodMonth == time.December && mm == 1:
		year++
	}
	t := time.Date(year, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	if t.Day() != dd {
		return time.Time{}, fmt.Errorf("invalid date %02d/%02d", mm, dd)
	}
	return t, nil
}

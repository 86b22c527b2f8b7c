// Package statement parses bank statements (CSV, XLSX and the text layer of
// PDFs) into banking transactions and imports them idempotently.
package statement

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownFormat is returned when a statement's format cannot be determined.
var ErrUnknownFormat = errors.New("statement: unknown format")

// Format is a statement file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates an explicit format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// DetectFormat infers the format from a file name's extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(name))
}

// Transaction is one parsed statement line. Exactly one of Debit and Credit
// is positive; both are non-negative.
type Transaction struct {
	Line        int
	Date        time.Time
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     *decimal.Decimal
}

// RowError is a statement line that could not be parsed. Row errors do not
// stop the parse.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// MarshalJSON renders the row error as {"line": n, "error": "..."}.
func (e RowError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Line  int    `json:"line"`
		Error string `json:"error"`
	}{e.Line, msg})
}

// Statement is the result of parsing one file.
type Statement struct {
	Format       Format
	Transactions []Transaction
	Errors       []RowError
}

// Parse reads a statement of the given format from r.
func Parse(r io.Reader, format Format) (*Statement, error) {
	var (
		st  *Statement
		err error
	)
	switch format {
	case FormatCSV:
		st, err = parseCSV(r)
	case FormatXLSX:
		st, err = parseXLSX(r)
	case FormatPDF:
		st, err = parsePDF(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}
	st.Format = format
	return st, nil
}

// ParseFile opens path and parses it. An empty format is detected from the
// file extension.
func ParseFile(path string, format Format) (*Statement, error) {
	if format == "" {
		f, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	f, err := os.Open(path) //nolint:gosec // path is an operator-supplied statement file
	if err != nil {
		return nil, fmt.Errorf("statement: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f, format)
}

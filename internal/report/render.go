package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Format is an output encoding for a report.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts text, csv, json or xlsx. An empty string is text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("report: unknown format %q (want text, csv, json or xlsx)", s)
	}
}

// ContentType is the HTTP media type of a format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render writes rep to w in format f.
func Render(w io.Writer, rep Report, f Format) error {
	var err error
	switch f {
	case FormatText, "":
		err = renderText(w, rep)
	case FormatCSV:
		err = renderCSV(w, rep)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(rep)
	case FormatXLSX:
		err = renderXLSX(w, rep)
	default:
		return fmt.Errorf("report: unknown format %q", f)
	}
	if err != nil {
		return fmt.Errorf("report: render %s as %s: %w", rep.Name(), f, err)
	}
	return nil
}

func renderText(w io.Writer, rep Report) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(rep.Columns()...).
		Rows(rep.Rows()...)
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func renderCSV(w io.Writer, rep Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rep.Columns()); err != nil {
		return err
	}
	if err := cw.WriteAll(rep.Rows()); err != nil {
		return err
	}
	return cw.Error()
}

// moneyFormat is the built-in "#,##0.00" number format.
const moneyFormat = 4

func columnKinds(rep Report) []ColumnKind {
	kinds := make([]ColumnKind, len(rep.Columns()))
	if t, ok := rep.(Typed); ok {
		copy(kinds, t.ColumnKinds())
	}
	return kinds
}

// xlsxValue writes numeric cells as numbers so spreadsheet formulas see them.
// Blank and unparsable cells stay text.
func xlsxValue(kind ColumnKind, s string) any {
	if kind == KindText || s == "" {
		return s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	if kind == KindNumber && d.IsInteger() {
		return d.IntPart()
	}
	return d.InexactFloat64()
}

func renderXLSX(w io.Writer, rep Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := rep.Name()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	kinds := columnKinds(rep)
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: moneyFormat})
	if err != nil {
		return err
	}
	for i, k := range kinds {
		if k != KindMoney {
			continue
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColStyle(sheet, col, moneyStyle); err != nil {
			return err
		}
	}

	write := func(row int, cells []string, typed bool) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		vals := make([]any, len(cells))
		for i, c := range cells {
			if typed && i < len(kinds) {
				vals[i] = xlsxValue(kinds[i], c)
			} else {
				vals[i] = c
			}
		}
		return f.SetSheetRow(sheet, cell, &vals)
	}
	if err := write(1, rep.Columns(), false); err != nil {
		return err
	}
	for i, r := range rep.Rows() {
		if err := write(i+2, r, true); err != nil {
			return err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

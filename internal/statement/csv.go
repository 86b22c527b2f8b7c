package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

func parseCSV(r io.Reader) (*Statement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var (
		rows  [][]string
		lines []int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("statement: read csv: %w", err)
		}
		// The reader skips blank lines, so keep the file line for row errors.
		line, _ := cr.FieldPos(0)
		rows = append(rows, rec)
		lines = append(lines, line)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("statement: empty csv")
	}
	if len(rows[0]) > 0 {
		rows[0][0] = trimBOM(rows[0][0])
	}
	return parseTable(rows, lines)
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}

package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var columnReplacer = strings.NewReplacer(" ", "_", ".", "_")

// NormalizeColumn trims, lowercases and replaces spaces and dots with
// underscores, so "emp.var.rate" becomes "emp_var_rate".
func NormalizeColumn(name string) string {
	return columnReplacer.Replace(strings.ToLower(strings.TrimSpace(name)))
}

// Transform re-encodes a semicolon separated file with a header as comma
// separated CSV with normalized column names. It returns the number of data
// rows written.
func Transform(r io.Reader, w io.Writer) (int, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.ReuseRecord = true

	writer := csv.NewWriter(w)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("empty CSV")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = NormalizeColumn(h)
	}
	if err := writer.Write(columns); err != nil {
		return 0, err
	}

	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read row %d: %w", rows+1, err)
		}
		if err := writer.Write(record); err != nil {
			return rows, err
		}
		rows++
	}

	writer.Flush()
	return rows, writer.Error()
}

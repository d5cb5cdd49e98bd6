package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"rfm-dashboard/internal/rfm"
)

// ReadCSV reads a comma separated dataset with a header row. Rows may have
// any number of fields; missing cells are reported when parsed.
func ReadCSV(r io.Reader, opts Options) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, rfm.ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	table := &Table{Header: normalizeHeader(header)}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if blank(record) {
			continue
		}
		if len(table.Rows) >= opts.maxRows() {
			return nil, ErrTooManyRows
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

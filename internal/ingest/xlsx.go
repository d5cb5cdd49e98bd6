package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"rfm-dashboard/internal/rfm"
)

// ReadXLSX reads the first worksheet of a workbook. Cells are taken raw so
// date cells arrive as spreadsheet serial numbers.
func ReadXLSX(r io.Reader, opts Options) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, rfm.ErrEmptyInput
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, rfm.ErrEmptyInput
	}

	table := &Table{Header: normalizeHeader(rows[0]), Spreadsheet: true}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		if len(table.Rows) >= opts.maxRows() {
			return nil, ErrTooManyRows
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

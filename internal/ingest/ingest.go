// Package ingest turns uploaded CSV or XLSX datasets into typed transactions.
// Every cell is validated here so the calculator never sees a missing or
// malformed value.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/rfm"
)

const (
	batchSize      = 10000
	maxWorkers     = 10
	DefaultMaxRows = 1_000_000

	// 9999-12-31 in the 1900 date system.
	maxSerialDate = 2958465
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .csv or .xlsx")
	ErrTooManyRows       = errors.New("dataset exceeds the configured row limit")
	errNegativeAmount    = errors.New("amount must not be negative")
	errEmptyCell         = errors.New("value is empty")
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/06",
	"1-2-2006",
}

// Table is a raw dataset: a header row followed by data rows of cells.
// Spreadsheet marks cells read raw from a workbook, where a numeric date
// cell is a serial day number.
type Table struct {
	Header      []string
	Rows        [][]string
	Spreadsheet bool
}

// ParseError points at the cell that could not be converted. Row is the
// 1-based row number in the source including the header row.
type ParseError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d, column %s: cannot parse %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type Options struct {
	MaxRows int
}

func (o Options) maxRows() int {
	if o.MaxRows <= 0 {
		return DefaultMaxRows
	}
	return o.MaxRows
}

// Read picks a reader from the file extension of name.
func Read(name string, r io.Reader, opts Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ReadCSV(r, opts)
	case ".xlsx":
		return ReadXLSX(r, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Parse validates the header and converts every row. The column check runs
// before any row is touched. When several rows are malformed the error names
// the first of them.
func Parse(ctx context.Context, table *Table) ([]models.Transaction, error) {
	header := normalizeHeader(table.Header)
	if err := rfm.RequireColumns(header); err != nil {
		return nil, err
	}
	if len(table.Rows) == 0 {
		return nil, rfm.ErrEmptyInput
	}

	idx := columnIndex(header)
	txs := make([]models.Transaction, len(table.Rows))
	batchErrs := make([]error, (len(table.Rows)+batchSize-1)/batchSize)

	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for b := range batchErrs {
		start := b * batchSize
		end := min(start+batchSize, len(table.Rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					batchErrs[b] = err
					return nil
				}
				tx, err := parseRow(table.Rows[i], idx, i+2, table.Spreadsheet)
				if err != nil {
					batchErrs[b] = err
					return nil
				}
				txs[i] = tx
			}
			return nil
		})
	}
	g.Wait()

	for _, err := range batchErrs {
		if err != nil {
			return nil, err
		}
	}
	return txs, nil
}

type columns struct {
	customerID, orderDate, sales int
}

func columnIndex(header []string) columns {
	cols := columns{customerID: -1, orderDate: -1, sales: -1}
	for i, h := range header {
		switch h {
		case rfm.ColumnCustomerID:
			cols.customerID = i
		case rfm.ColumnOrderDate:
			cols.orderDate = i
		case rfm.ColumnSales:
			cols.sales = i
		}
	}
	return cols
}

func parseRow(row []string, cols columns, rowNum int, spreadsheet bool) (models.Transaction, error) {
	cell := func(i int) string {
		if i >= 0 && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	customerID := cell(cols.customerID)
	if customerID == "" {
		return models.Transaction{}, &ParseError{Row: rowNum, Column: rfm.ColumnCustomerID, Err: errEmptyCell}
	}

	rawDate := cell(cols.orderDate)
	orderDate, err := ParseDate(rawDate)
	if err != nil && spreadsheet && rawDate != "" {
		orderDate, err = ParseSerialDate(rawDate)
	}
	if err != nil {
		return models.Transaction{}, &ParseError{Row: rowNum, Column: rfm.ColumnOrderDate, Value: rawDate, Err: err}
	}

	rawSales := cell(cols.sales)
	sales, err := ParseAmount(rawSales)
	if err != nil {
		return models.Transaction{}, &ParseError{Row: rowNum, Column: rfm.ColumnSales, Value: rawSales, Err: err}
	}

	return models.Transaction{
		CustomerID: customerID,
		OrderDate:  orderDate,
		Sales:      sales,
	}, nil
}

// ParseDate accepts ISO dates and timestamps and US month-first dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyCell
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognised date format")
}

// ParseSerialDate converts a spreadsheet serial day number in the 1900 date
// system. Fractions are the time of day.
func ParseSerialDate(s string) (time.Time, error) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return time.Time{}, errors.New("unrecognised date format")
	}
	if serial < 1 || serial >= maxSerialDate+1 {
		return time.Time{}, fmt.Errorf("serial date %v out of range", serial)
	}
	return excelize.ExcelDateToTime(serial, false)
}

// ParseAmount parses a non-negative decimal, allowing thousands separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Decimal{}, errEmptyCell
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, errNegativeAmount
	}
	return amount, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

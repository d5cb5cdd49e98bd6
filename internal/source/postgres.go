// Package source loads transaction tables from Postgres into the same raw
// table shape that file uploads produce.
package source

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/rfm"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Columns maps the required transaction fields onto table columns.
type Columns struct {
	CustomerID string
	OrderDate  string
	Sales      string
}

type Options struct {
	Schema  string
	Table   string
	Columns Columns
	MaxRows int
}

// OptionsFromConfig maps the source section of the service configuration.
func OptionsFromConfig(cfg config.SourceConfig, maxRows int) Options {
	return Options{
		Schema: cfg.Schema,
		Table:  cfg.Table,
		Columns: Columns{
			CustomerID: cfg.CustomerColumn,
			OrderDate:  cfg.DateColumn,
			Sales:      cfg.SalesColumn,
		},
		MaxRows: maxRows,
	}
}

// PostgresLoader reads one transaction table.
type PostgresLoader struct {
	pool *pgxpool.Pool
	opts Options
}

func NewPostgresLoader(pool *pgxpool.Pool, opts Options) *PostgresLoader {
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = ingest.DefaultMaxRows
	}
	return &PostgresLoader{pool: pool, opts: opts}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Name identifies the source in logs and analysis records.
func (l *PostgresLoader) Name() string {
	return fmt.Sprintf("postgres:%s.%s", l.opts.Schema, l.opts.Table)
}

// Load checks the table's columns, then selects every transaction as text so
// the rows go through the same validation as uploaded files.
func (l *PostgresLoader) Load(ctx context.Context) (*ingest.Table, error) {
	if err := l.checkColumns(ctx); err != nil {
		return nil, err
	}

	query, args, err := l.selectQuery()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	table := &ingest.Table{Header: append([]string(nil), rfm.RequiredColumns...)}
	for rows.Next() {
		if len(table.Rows) >= l.opts.MaxRows {
			return nil, ingest.ErrTooManyRows
		}

		var customerID, orderDate, sales *string
		if err := rows.Scan(&customerID, &orderDate, &sales); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		table.Rows = append(table.Rows, []string{deref(customerID), deref(orderDate), deref(sales)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return table, nil
}

func (l *PostgresLoader) checkColumns(ctx context.Context) error {
	query, args, err := l.columnsQuery()
	if err != nil {
		return fmt.Errorf("build columns query: %w", err)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query columns: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("collect columns: %w", err)
	}

	return l.missingColumns(names)
}

func (l *PostgresLoader) missingColumns(present []string) error {
	have := make(map[string]bool, len(present))
	for _, name := range present {
		have[name] = true
	}

	var missing []string
	for _, col := range []string{l.opts.Columns.CustomerID, l.opts.Columns.OrderDate, l.opts.Columns.Sales} {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &rfm.SchemaError{Missing: missing}
	}
	return nil
}

func (l *PostgresLoader) columnsQuery() (string, []any, error) {
	return psql.Select("column_name").
		From("information_schema.columns").
		Where(sq.Eq{"table_schema": l.opts.Schema, "table_name": l.opts.Table}).
		OrderBy("ordinal_position").
		ToSql()
}

func (l *PostgresLoader) selectQuery() (string, []any, error) {
	c := l.opts.Columns
	return psql.Select(
		asText(c.CustomerID, rfm.ColumnCustomerID),
		asText(c.OrderDate, rfm.ColumnOrderDate),
		asText(c.Sales, rfm.ColumnSales),
	).
		From(pgx.Identifier{l.opts.Schema, l.opts.Table}.Sanitize()).
		Limit(uint64(l.opts.MaxRows) + 1).
		ToSql()
}

func asText(column, alias string) string {
	return fmt.Sprintf("%s::text AS %s", pgx.Identifier{column}.Sanitize(), pgx.Identifier{alias}.Sanitize())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Close releases the pool.
func (l *PostgresLoader) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

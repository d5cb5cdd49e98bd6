package rfm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned when no transactions were supplied.
var ErrEmptyInput = errors.New("rfm: no transactions to aggregate")

// SchemaError reports required input columns that are absent.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("rfm: missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ScoringError reports a metric that cannot be split into five quantile bins.
type ScoringError struct {
	Metric   Metric
	Distinct int
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("rfm: %s has %d distinct values, need at least %d to form quintile bins",
		e.Metric, e.Distinct, bins)
}

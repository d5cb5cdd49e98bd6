// Package rfm computes Recency, Frequency and Monetary metrics per customer,
// scores each metric by quintile and labels customers with a value segment.
//
// Everything here is a pure function of the transaction set: no I/O, no
// shared state.
package rfm

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rfm-dashboard/internal/models"
)

// Input column names.
const (
	ColumnCustomerID = "Customer_ID"
	ColumnOrderDate  = "Order_Date"
	ColumnSales      = "Sales"
)

// RequiredColumns are the input columns the calculator cannot work without.
var RequiredColumns = []string{ColumnCustomerID, ColumnOrderDate, ColumnSales}

const (
	day           = 24 * time.Hour
	secondsPerDay = 24 * 60 * 60
)

// RequireColumns checks a header row against RequiredColumns and returns a
// *SchemaError naming every column that is missing.
func RequireColumns(header []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = true
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// SnapshotDate is the day after the latest order in txs.
func SnapshotDate(txs []models.Transaction) (time.Time, error) {
	if len(txs) == 0 {
		return time.Time{}, ErrEmptyInput
	}
	latest := txs[0].OrderDate
	for _, tx := range txs[1:] {
		if tx.OrderDate.After(latest) {
			latest = tx.OrderDate
		}
	}
	return latest.Add(day), nil
}

// Analyze derives the snapshot date from txs and computes the report.
func Analyze(txs []models.Transaction) (*models.Report, error) {
	snapshot, err := SnapshotDate(txs)
	if err != nil {
		return nil, err
	}
	return Compute(txs, snapshot)
}

type aggregate struct {
	customerID string
	latest     time.Time
	count      int
	total      decimal.Decimal
}

// Compute aggregates txs per customer relative to snapshot, scores and
// segments them. Customers are returned ordered by id. Either the full report
// is returned or an error; never a partial table.
func Compute(txs []models.Transaction, snapshot time.Time) (*models.Report, error) {
	if len(txs) == 0 {
		return nil, ErrEmptyInput
	}

	groups := aggregateByCustomer(txs)

	customers := make([]models.CustomerRFM, len(groups))
	for i, g := range groups {
		customers[i] = models.CustomerRFM{
			CustomerID: g.customerID,
			Recency:    daysBetween(g.latest, snapshot),
			Frequency:  g.count,
			Monetary:   g.total,
		}
	}

	if err := score(customers); err != nil {
		return nil, err
	}

	for i := range customers {
		c := &customers[i]
		c.RFMScore = c.RScore + c.FScore + c.MScore
		c.Segment = Classify(c.RFMScore)
	}

	return &models.Report{
		SnapshotDate: snapshot,
		Customers:    customers,
		Segments:     CountSegments(customers),
		Scatter:      scatter(customers),
	}, nil
}

// daysBetween counts whole days from from to to. It does not go through
// time.Duration, which saturates at about 292 years.
func daysBetween(from, to time.Time) int {
	return int((to.Unix() - from.Unix()) / secondsPerDay)
}

func aggregateByCustomer(txs []models.Transaction) []*aggregate {
	byID := make(map[string]*aggregate)
	for _, tx := range txs {
		g := byID[tx.CustomerID]
		if g == nil {
			g = &aggregate{customerID: tx.CustomerID, latest: tx.OrderDate, total: decimal.Zero}
			byID[tx.CustomerID] = g
		}
		if tx.OrderDate.After(g.latest) {
			g.latest = tx.OrderDate
		}
		g.count++
		g.total = g.total.Add(tx.Sales)
	}

	groups := make([]*aggregate, 0, len(byID))
	for _, g := range byID {
		groups = append(groups, g)
	}
	slices.SortFunc(groups, func(a, b *aggregate) int {
		return strings.Compare(a.customerID, b.customerID)
	})
	return groups
}

// CountSegments tallies customers per segment, largest first. Equal counts
// keep segment rank order.
func CountSegments(customers []models.CustomerRFM) []models.SegmentCount {
	counts := make(map[models.Segment]int)
	for _, c := range customers {
		counts[c.Segment]++
	}

	result := make([]models.SegmentCount, 0, len(counts))
	for seg, n := range counts {
		result = append(result, models.SegmentCount{Segment: seg, Count: n})
	}
	slices.SortFunc(result, func(a, b models.SegmentCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return a.Segment.Rank() - b.Segment.Rank()
	})
	return result
}

func scatter(customers []models.CustomerRFM) []models.ScatterPoint {
	points := make([]models.ScatterPoint, len(customers))
	for i, c := range customers {
		points[i] = models.ScatterPoint{
			CustomerID: c.CustomerID,
			Recency:    c.Recency,
			Monetary:   c.Monetary.InexactFloat64(),
			Frequency:  c.Frequency,
			Segment:    c.Segment,
		}
	}
	return points
}

package rfm

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"rfm-dashboard/internal/models"
)

func day1(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func tx(id string, d int, sales string) models.Transaction {
	return models.Transaction{
		CustomerID: id,
		OrderDate:  day1(d),
		Sales:      decimal.RequireFromString(sales),
	}
}

// laddered builds ten customers C01..C10 where customer k orders k times on
// day k for 10 each.
func laddered() []models.Transaction {
	var txs []models.Transaction
	for k := 1; k <= 10; k++ {
		for range k {
			txs = append(txs, tx(fmt.Sprintf("C%02d", k), k, "10"))
		}
	}
	return txs
}

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestRequireColumns(t *testing.T) {
	tests := []struct {
		name    string
		header  []string
		missing []string
	}{
		{"all present", []string{"Customer_ID", "Order_Date", "Sales"}, nil},
		{"extra columns ignored", []string{"Row_ID", " Customer_ID ", "Order_Date", "Region", "Sales"}, nil},
		{"missing sales", []string{"Customer_ID", "Order_Date"}, []string{"Sales"}},
		{"missing all", []string{"customer_id", "date"}, []string{"Customer_ID", "Order_Date", "Sales"}},
		{"empty header", nil, []string{"Customer_ID", "Order_Date", "Sales"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireColumns(tt.header)
			if tt.missing == nil {
				if err != nil {
					t.Fatalf("RequireColumns() unexpected error: %v", err)
				}
				return
			}

			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("RequireColumns() error = %v, want *SchemaError", err)
			}
			if diff := cmp.Diff(tt.missing, schemaErr.Missing); diff != "" {
				t.Errorf("missing columns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSnapshotDate(t *testing.T) {
	got, err := SnapshotDate([]models.Transaction{tx("A", 3, "1"), tx("B", 9, "1"), tx("C", 2, "1")})
	if err != nil {
		t.Fatal(err)
	}
	if want := day1(10); !got.Equal(want) {
		t.Errorf("SnapshotDate() = %v, want %v", got, want)
	}

	if _, err := SnapshotDate(nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("SnapshotDate(nil) error = %v, want ErrEmptyInput", err)
	}
}

func TestAggregateByCustomer_TwoCustomers(t *testing.T) {
	txs := []models.Transaction{
		tx("C1", 1, "10"), tx("C1", 5, "20"), tx("C1", 10, "30"),
		tx("C2", 2, "100"), tx("C2", 2, "100"), tx("C2", 2, "100"),
	}
	snapshot, err := SnapshotDate(txs)
	if err != nil {
		t.Fatal(err)
	}
	if !snapshot.Equal(day1(11)) {
		t.Fatalf("snapshot = %v, want day 11", snapshot)
	}

	groups := aggregateByCustomer(txs)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	want := []struct {
		id        string
		recency   int
		frequency int
		monetary  string
	}{
		{"C1", 1, 3, "60"},
		{"C2", 9, 3, "300"},
	}
	for i, w := range want {
		g := groups[i]
		recency := daysBetween(g.latest, snapshot)
		if g.customerID != w.id || recency != w.recency || g.count != w.frequency ||
			!g.total.Equal(decimal.RequireFromString(w.monetary)) {
			t.Errorf("group %d = {%s r=%d f=%d m=%s}, want %+v",
				i, g.customerID, recency, g.count, g.total, w)
		}
	}
}

func TestCompute_Laddered(t *testing.T) {
	report, err := Analyze(laddered())
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	if !report.SnapshotDate.Equal(day1(11)) {
		t.Errorf("snapshot = %v, want day 11", report.SnapshotDate)
	}

	want := make([]models.CustomerRFM, 0, 10)
	for k := 1; k <= 10; k++ {
		s := (k + 1) / 2
		total := 3 * s
		want = append(want, models.CustomerRFM{
			CustomerID: fmt.Sprintf("C%02d", k),
			Recency:    11 - k,
			Frequency:  k,
			Monetary:   decimal.NewFromInt(int64(10 * k)),
			RScore:     s,
			FScore:     s,
			MScore:     s,
			RFMScore:   total,
			Segment:    Classify(total),
		})
	}
	if diff := cmp.Diff(want, report.Customers, decimalEqual); diff != "" {
		t.Errorf("customers mismatch (-want +got):\n%s", diff)
	}

	wantSegments := []models.SegmentCount{
		{Segment: models.SegmentChampions, Count: 6},
		{Segment: models.SegmentPotentialLoyalist, Count: 2},
		{Segment: models.SegmentAtRisk, Count: 2},
	}
	if diff := cmp.Diff(wantSegments, report.Segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}

	if len(report.Scatter) != len(report.Customers) {
		t.Fatalf("scatter has %d points, want %d", len(report.Scatter), len(report.Customers))
	}
	if p := report.Scatter[9]; p.CustomerID != "C10" || p.Recency != 1 || p.Monetary != 100 {
		t.Errorf("scatter[9] = %+v", p)
	}
}

func TestCompute_FrequencyTiesUseFirstSeenRank(t *testing.T) {
	txs := []models.Transaction{
		tx("E", 5, "5"), tx("C", 3, "3"), tx("A", 1, "1"), tx("D", 4, "4"), tx("B", 2, "2"),
	}
	report, err := Analyze(txs)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	for i, c := range report.Customers {
		wantF := i + 1
		if c.FScore != wantF {
			t.Errorf("%s FScore = %d, want %d", c.CustomerID, c.FScore, wantF)
		}
		if c.RScore != wantF || c.MScore != wantF {
			t.Errorf("%s R/M = %d/%d, want %d", c.CustomerID, c.RScore, c.MScore, wantF)
		}
	}
}

func TestCompute_Errors(t *testing.T) {
	fourCustomers := []models.Transaction{
		tx("A", 1, "1"), tx("B", 2, "2"), tx("C", 3, "3"), tx("D", 4, "4"),
	}
	flatMonetary := []models.Transaction{
		tx("A", 1, "10"), tx("B", 2, "10"), tx("C", 3, "10"), tx("D", 4, "10"), tx("E", 5, "10"),
	}
	fewRecencies := []models.Transaction{
		tx("A", 1, "1"), tx("B", 1, "2"), tx("C", 2, "3"), tx("D", 3, "4"), tx("E", 4, "5"), tx("F", 4, "6"),
	}

	tests := []struct {
		name     string
		txs      []models.Transaction
		metric   Metric
		distinct int
	}{
		{"four customers", fourCustomers, MetricRecency, 4},
		{"identical spend", flatMonetary, MetricMonetary, 1},
		{"four recency values", fewRecencies, MetricRecency, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Analyze(tt.txs)
			if report != nil {
				t.Error("expected no report on failure")
			}
			var scoringErr *ScoringError
			if !errors.As(err, &scoringErr) {
				t.Fatalf("error = %v, want *ScoringError", err)
			}
			if scoringErr.Metric != tt.metric || scoringErr.Distinct != tt.distinct {
				t.Errorf("got %s/%d, want %s/%d", scoringErr.Metric, scoringErr.Distinct, tt.metric, tt.distinct)
			}
		})
	}

	t.Run("empty", func(t *testing.T) {
		if _, err := Compute(nil, day1(1)); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Compute(nil) error = %v, want ErrEmptyInput", err)
		}
	})
}

func TestCompute_RecencyAcrossCenturies(t *testing.T) {
	var txs []models.Transaction
	for k := 1; k <= 5; k++ {
		txs = append(txs, models.Transaction{
			CustomerID: fmt.Sprintf("C%d", k),
			OrderDate:  day1(k),
			Sales:      decimal.NewFromInt(int64(k)),
		})
	}
	txs = append(txs, models.Transaction{
		CustomerID: "C0",
		OrderDate:  time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC),
		Sales:      decimal.NewFromInt(1),
	})

	report, err := Analyze(txs)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	snapshot := day1(6)
	want := int(snapshot.Unix()-time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC).Unix()) / secondsPerDay
	if got := report.Customers[0]; got.CustomerID != "C0" || got.Recency != want {
		t.Errorf("C0 recency = %d, want %d", got.Recency, want)
	}
	if want < 190000 {
		t.Fatalf("expected more than 190000 days, got %d", want)
	}
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		to   time.Time
		want int
	}{
		{time.Date(2024, 1, 2, 17, 59, 0, 0, time.UTC), 0},
		{time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC), 1},
		{time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC), 60},
	}
	for _, tt := range tests {
		if got := daysBetween(from, tt.to); got != tt.want {
			t.Errorf("daysBetween(%v, %v) = %d, want %d", from, tt.to, got, tt.want)
		}
	}
}

func TestCompute_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		customers := 5 + rng.Intn(60)
		var txs []models.Transaction
		ids := make(map[string]bool)
		for c := 0; c < customers; c++ {
			id := fmt.Sprintf("cust-%03d", c)
			ids[id] = true
			// Distinct last-order day and distinct spend per customer keep every
			// metric above the five-value floor.
			txs = append(txs, tx(id, 1, "0.50"))
			orders := rng.Intn(4)
			for o := 0; o < orders; o++ {
				txs = append(txs, tx(id, 1+rng.Intn(28), "1.25"))
			}
			last := models.Transaction{
				CustomerID: id,
				OrderDate:  day1(1).AddDate(0, 0, c+28),
				Sales:      decimal.NewFromInt(int64(c * 7)),
			}
			txs = append(txs, last)
		}
		rng.Shuffle(len(txs), func(i, j int) { txs[i], txs[j] = txs[j], txs[i] })

		report, err := Analyze(txs)
		if err != nil {
			t.Fatalf("run %d: Analyze() error: %v", run, err)
		}

		if len(report.Customers) != len(ids) {
			t.Fatalf("run %d: %d rows for %d distinct customers", run, len(report.Customers), len(ids))
		}

		seen := make(map[string]bool)
		for _, c := range report.Customers {
			if seen[c.CustomerID] {
				t.Fatalf("run %d: duplicate customer %s", run, c.CustomerID)
			}
			seen[c.CustomerID] = true

			if c.Recency < 0 {
				t.Errorf("run %d: %s recency %d < 0", run, c.CustomerID, c.Recency)
			}
			if c.Frequency < 1 {
				t.Errorf("run %d: %s frequency %d < 1", run, c.CustomerID, c.Frequency)
			}
			if c.RFMScore != c.RScore+c.FScore+c.MScore {
				t.Errorf("run %d: %s score %d != %d+%d+%d", run, c.CustomerID, c.RFMScore, c.RScore, c.FScore, c.MScore)
			}
			if c.RFMScore < 3 || c.RFMScore > 15 {
				t.Errorf("run %d: %s score %d out of range", run, c.CustomerID, c.RFMScore)
			}
			if c.Segment != Classify(c.RFMScore) {
				t.Errorf("run %d: %s segment %q does not match score %d", run, c.CustomerID, c.Segment, c.RFMScore)
			}
		}

		total := 0
		for _, s := range report.Segments {
			total += s.Count
		}
		if total != len(report.Customers) {
			t.Errorf("run %d: segment counts sum to %d, want %d", run, total, len(report.Customers))
		}
	}
}

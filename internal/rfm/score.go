package rfm

import (
	"cmp"
	"slices"

	"rfm-dashboard/internal/models"
)

// Metric names a scored RFM dimension.
type Metric string

const (
	MetricRecency   Metric = "Recency"
	MetricFrequency Metric = "Frequency"
	MetricMonetary  Metric = "Monetary"
)

const bins = 5

func score(customers []models.CustomerRFM) error {
	n := len(customers)

	recency, err := quintiles(MetricRecency, n, false, func(i, j int) int {
		return cmp.Compare(customers[i].Recency, customers[j].Recency)
	})
	if err != nil {
		return err
	}

	frequency, err := quintiles(MetricFrequency, n, true, func(i, j int) int {
		return cmp.Compare(customers[i].Frequency, customers[j].Frequency)
	})
	if err != nil {
		return err
	}

	monetary, err := quintiles(MetricMonetary, n, false, func(i, j int) int {
		return customers[i].Monetary.Cmp(customers[j].Monetary)
	})
	if err != nil {
		return err
	}

	for i := range customers {
		// Lower recency is better, so the first bin scores highest.
		customers[i].RScore = bins - recency[i]
		customers[i].FScore = frequency[i] + 1
		customers[i].MScore = monetary[i] + 1
	}
	return nil
}

// quintiles assigns each of n observations a bin index in [0,5). Observations
// are stable-sorted by compare so ties keep their input order, then split
// into five contiguous ranges; the first n%5 ranges take one extra element.
//
// With firstRank the sorted positions themselves are binned, so every
// observation counts as distinct. Otherwise fewer than five distinct values
// is a *ScoringError.
func quintiles(metric Metric, n int, firstRank bool, compare func(i, j int) int) ([]int, error) {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, compare)

	distinct := n
	if !firstRank {
		distinct = 0
		for k := range order {
			if k == 0 || compare(order[k-1], order[k]) != 0 {
				distinct++
			}
		}
	}
	if distinct < bins {
		return nil, &ScoringError{Metric: metric, Distinct: distinct}
	}

	assigned := make([]int, n)
	size, extra := n/bins, n%bins
	pos := 0
	for b := 0; b < bins; b++ {
		width := size
		if b < extra {
			width++
		}
		for _, idx := range order[pos : pos+width] {
			assigned[idx] = b
		}
		pos += width
	}
	return assigned, nil
}

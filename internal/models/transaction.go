package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	CustomerID string
	OrderDate  time.Time
	Sales      decimal.Decimal
}

type Segment string

const (
	SegmentChampions         Segment = "Champions"
	SegmentLoyalCustomers    Segment = "Loyal Customers"
	SegmentPotentialLoyalist Segment = "Potential Loyalist"
	SegmentAtRisk            Segment = "At Risk"
	SegmentLost              Segment = "Lost"
)

// Segments lists every segment from highest to lowest value tier.
var Segments = []Segment{
	SegmentChampions,
	SegmentLoyalCustomers,
	SegmentPotentialLoyalist,
	SegmentAtRisk,
	SegmentLost,
}

// Rank returns the position of s in Segments, or len(Segments) if unknown.
func (s Segment) Rank() int {
	for i, seg := range Segments {
		if seg == s {
			return i
		}
	}
	return len(Segments)
}

type CustomerRFM struct {
	CustomerID string          `json:"customer_id"`
	Recency    int             `json:"recency"`
	Frequency  int             `json:"frequency"`
	Monetary   decimal.Decimal `json:"monetary"`
	RScore     int             `json:"r_score"`
	FScore     int             `json:"f_score"`
	MScore     int             `json:"m_score"`
	RFMScore   int             `json:"rfm_score"`
	Segment    Segment         `json:"segment"`
}

type SegmentCount struct {
	Segment Segment `json:"segment"`
	Count   int     `json:"count"`
}

type ScatterPoint struct {
	CustomerID string  `json:"customer_id"`
	Recency    int     `json:"recency"`
	Monetary   float64 `json:"monetary"`
	Frequency  int     `json:"frequency"`
	Segment    Segment `json:"segment"`
}

type Report struct {
	SnapshotDate time.Time      `json:"snapshot_date"`
	Customers    []CustomerRFM  `json:"customers"`
	Segments     []SegmentCount `json:"segments"`
	Scatter      []ScatterPoint `json:"scatter"`
}

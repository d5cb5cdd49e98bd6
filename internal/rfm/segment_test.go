package rfm

import (
	"testing"

	"rfm-dashboard/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		score int
		want  models.Segment
	}{
		{15, models.SegmentChampions},
		{9, models.SegmentChampions},
		{8, models.SegmentLoyalCustomers},
		{7, models.SegmentLoyalCustomers},
		{6, models.SegmentPotentialLoyalist},
		{5, models.SegmentPotentialLoyalist},
		{4, models.SegmentAtRisk},
		{3, models.SegmentAtRisk},
		{2, models.SegmentLost},
		{0, models.SegmentLost},
	}

	for _, tt := range tests {
		if got := Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestCountSegments(t *testing.T) {
	customers := []models.CustomerRFM{
		{Segment: models.SegmentAtRisk},
		{Segment: models.SegmentChampions},
		{Segment: models.SegmentAtRisk},
		{Segment: models.SegmentLoyalCustomers},
		{Segment: models.SegmentChampions},
	}

	got := CountSegments(customers)
	want := []models.SegmentCount{
		{Segment: models.SegmentChampions, Count: 2},
		{Segment: models.SegmentAtRisk, Count: 2},
		{Segment: models.SegmentLoyalCustomers, Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("CountSegments() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CountSegments()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

package rfm

import "rfm-dashboard/internal/models"

// Classify maps a summed RFM score to its segment. Ranges are checked top
// down and the first match wins.
//
// Scores start at 3, so the Lost branch is never taken by Compute. It stays
// so the label set matches what downstream reports expect.
func Classify(score int) models.Segment {
	switch {
	case score >= 9:
		return models.SegmentChampions
	case score >= 7:
		return models.SegmentLoyalCustomers
	case score >= 5:
		return models.SegmentPotentialLoyalist
	case score >= 3:
		return models.SegmentAtRisk
	default:
		return models.SegmentLost
	}
}

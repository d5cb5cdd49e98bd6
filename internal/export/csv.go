// Package export writes RFM results in the downloadable CSV layout.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"rfm-dashboard/internal/models"
)

const (
	Filename    = "rfm_results.csv"
	ContentType = "text/csv; charset=utf-8"
)

// Header is the column order of an exported result file.
var Header = []string{
	"Customer_ID", "Recency", "Frequency", "Monetary",
	"R_Score", "F_Score", "M_Score", "RFM_Score", "Segment",
}

// WriteCSV writes customers as UTF-8 CSV with a header row.
func WriteCSV(w io.Writer, customers []models.CustomerRFM) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, c := range customers {
		record := []string{
			c.CustomerID,
			strconv.Itoa(c.Recency),
			strconv.Itoa(c.Frequency),
			c.Monetary.String(),
			strconv.Itoa(c.RScore),
			strconv.Itoa(c.FScore),
			strconv.Itoa(c.MScore),
			strconv.Itoa(c.RFMScore),
			string(c.Segment),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write customer %s: %w", c.CustomerID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

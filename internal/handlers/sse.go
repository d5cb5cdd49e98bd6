package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/services"
)

const maxTableRows = 200

var resultsTableTemplate = template.Must(template.New("resultsTable").Parse(`
<div id="rfm-table">
<table class="modern-table">
<thead><tr><th>Customer</th><th>Recency</th><th>Frequency</th><th>Monetary</th><th>R</th><th>F</th><th>M</th><th>RFM</th><th>Segment</th></tr></thead>
<tbody>
{{range .Rows}}<tr>
<td>{{.CustomerID}}</td>
<td>{{.Recency}}</td>
<td>{{.Frequency}}</td>
<td>{{.Monetary.StringFixed 2}}</td>
<td>{{.RScore}}</td>
<td>{{.FScore}}</td>
<td>{{.MScore}}</td>
<td><strong>{{.RFMScore}}</strong></td>
<td><span class="segment-badge">{{.Segment}}</span></td>
</tr>{{end}}
</tbody>
</table>
{{if lt (len .Rows) .Total}}<p class="truncated">Showing {{len .Rows}} of {{.Total}} customers. Download the CSV for the full list.</p>{{end}}
</div>`))

var missingTemplate = template.Must(template.New("missing").Parse(
	`<div id="{{.Target}}" class="notice">Analysis not found or expired. Upload the dataset again.</div>`))

type SSEHandlers struct {
	analyzer *services.Analyzer
	logger   *slog.Logger
}

func NewSSEHandlers(analyzer *services.Analyzer, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analyzer: analyzer,
		logger:   logger,
	}
}

type tableData struct {
	Rows  []models.CustomerRFM
	Total int
}

func renderResultsTable(customers []models.CustomerRFM) (string, error) {
	var buf strings.Builder
	data := tableData{
		Rows:  customers[:min(len(customers), maxTableRows)],
		Total: len(customers),
	}
	err := resultsTableTemplate.Execute(&buf, data)
	return buf.String(), err
}

func renderMissing(target string) (string, error) {
	var buf strings.Builder
	err := missingTemplate.Execute(&buf, struct{ Target string }{target})
	return buf.String(), err
}

// HandleResultsTable streams the per-customer table into #rfm-table.
func (h *SSEHandlers) HandleResultsTable(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	analysis, err := h.analyzer.Get(r.PathValue("id"))
	if err != nil {
		h.patchMissing(sse, "rfm-table")
		return
	}

	html, err := renderResultsTable(analysis.Report.Customers)
	if err != nil {
		h.logger.Error("render results table", "analysis_id", analysis.ID, "error", err)
		return
	}
	if err := sse.PatchElements(html); err != nil {
		h.logger.Warn("patch results table", "analysis_id", analysis.ID, "error", err)
	}
}

// HandleCharts sends the segment counts and scatter points as signals; the
// page draws both charts from them.
func (h *SSEHandlers) HandleCharts(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	analysis, err := h.analyzer.Get(r.PathValue("id"))
	if err != nil {
		h.patchMissing(sse, "charts-status")
		return
	}

	signals, err := json.Marshal(map[string]any{
		"segmentData": analysis.Report.Segments,
		"scatterData": analysis.Report.Scatter,
	})
	if err != nil {
		h.logger.Error("marshal chart signals", "analysis_id", analysis.ID, "error", err)
		return
	}
	if err := sse.PatchSignals(signals); err != nil {
		h.logger.Warn("patch chart signals", "analysis_id", analysis.ID, "error", err)
		return
	}

	sse.PatchElements(`<div id="charts-status">Charts loaded</div>`)
}

func (h *SSEHandlers) patchMissing(sse *datastar.ServerSentEventGenerator, target string) {
	html, err := renderMissing(target)
	if err != nil {
		h.logger.Error("render missing notice", "error", err)
		return
	}
	sse.PatchElements(html)
}

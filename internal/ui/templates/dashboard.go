package templates

import (
	"context"
	"html/template"
	"io"
	"time"

	"github.com/a-h/templ"

	"rfm-dashboard/internal/models"
)

// Notice is a user facing failure shown above the upload form.
type Notice struct {
	Code    string
	Message string
	Details string
	Fields  []string
}

// AnalysisView is everything the results panel needs from one analysis.
type AnalysisView struct {
	ID            string
	Source        string
	Transactions  int
	Customers     int
	SnapshotDate  time.Time
	PreviewHeader []string
	PreviewRows   [][]string
	Segments      []models.SegmentCount
}

type Page struct {
	Title     string
	MaxUpload string
	Notice    *Notice
	Analysis  *AnalysisView
	Required  []string
	HasSource bool
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<script type="module" src="https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"></script>
<script src="https://cdn.plot.ly/plotly-2.35.2.min.js"></script>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 1100px; color: #1f2933; }
.card { border: 1px solid #e4e7eb; border-radius: 8px; padding: 1rem 1.5rem; margin-bottom: 1.5rem; }
.notice { border-color: #e12d39; background: #ffe3e3; }
.modern-table { border-collapse: collapse; width: 100%; font-size: 0.9rem; }
.modern-table th, .modern-table td { border-bottom: 1px solid #e4e7eb; padding: 0.35rem 0.6rem; text-align: left; }
.segment-badge { border-radius: 4px; padding: 0.1rem 0.4rem; background: #e6f6ff; }
.charts { display: grid; grid-template-columns: 1fr 1fr; gap: 1rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Upload a CSV or Excel file of transactions with the columns {{range $i, $c := .Required}}{{if $i}}, {{end}}<code>{{$c}}</code>{{end}}.</p>

{{with .Notice}}<div id="notice" class="card notice" data-code="{{.Code}}">
<strong>{{.Message}}</strong>
{{if .Details}}<p>{{.Details}}</p>{{end}}
{{if .Fields}}<ul>{{range .Fields}}<li class="field">{{.}}</li>{{end}}</ul>{{end}}
</div>{{end}}

<form id="upload" class="card" method="post" action="/analyses" enctype="multipart/form-data">
<input type="file" name="dataset" accept=".csv,.xlsx" required>
<button type="submit">Analyze</button>
<small>Up to {{.MaxUpload}}.</small>
</form>
{{if .HasSource}}<form id="source" class="card" method="post" action="/analyses/source">
<button type="submit">Analyze the configured database table</button>
</form>{{end}}

{{with .Analysis}}<section id="analysis" data-analysis-id="{{.ID}}"
 data-signals="{segmentData: [], scatterData: []}"
 data-effect="window.renderRFMCharts && window.renderRFMCharts($segmentData, $scatterData)">
<div class="card">
<h2>Data preview</h2>
<p>{{.Source}}: {{.Transactions}} transactions, {{.Customers}} customers, snapshot {{.SnapshotDate.Format "2006-01-02"}}.</p>
<table id="preview" class="modern-table">
<thead><tr>{{range .PreviewHeader}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .PreviewRows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>
</table>
</div>

<div class="card">
<h2>RFM analysis results</h2>
<div id="rfm-table" data-init="@get('/sse/analyses/{{.ID}}/table')">Loading results…</div>
<p><a id="download" href="/api/analyses/{{.ID}}/export" download>Download RFM results as CSV</a></p>
</div>

<div class="card">
<h2>Customer segments</h2>
<ul id="segment-summary">{{range .Segments}}<li data-segment="{{.Segment}}">{{.Segment}}: {{.Count}}</li>{{end}}</ul>
<div id="charts-status" data-init="@get('/sse/analyses/{{.ID}}/charts')"></div>
<div class="charts">
<div id="segment-chart"></div>
<div id="scatter-chart"></div>
</div>
</div>
</section>
<script>
window.renderRFMCharts = function (segments, points) {
  if (!window.Plotly || !segments || segments.length === 0) { return; }
  Plotly.react("segment-chart", [{
    type: "bar",
    x: segments.map(s => s.segment),
    y: segments.map(s => s.count),
  }], { title: "Customer segment distribution", yaxis: { title: "Number of customers" } });

  const bySegment = {};
  for (const p of points) {
    (bySegment[p.segment] ||= { x: [], y: [], text: [] });
    bySegment[p.segment].x.push(p.recency);
    bySegment[p.segment].y.push(p.monetary);
    bySegment[p.segment].text.push(p.customer_id);
  }
  Plotly.react("scatter-chart", Object.entries(bySegment).map(([name, s]) => ({
    type: "scatter", mode: "markers", name: name, x: s.x, y: s.y, text: s.text,
  })), { title: "Recency vs Monetary", xaxis: { title: "Recency (days)" }, yaxis: { title: "Monetary" } });
};
</script>{{end}}
</body>
</html>
`))

// Dashboard renders the full page: upload form, any failure notice, and the
// results panel when an analysis is selected.
func Dashboard(page Page) templ.Component {
	if page.Title == "" {
		page.Title = "RFM Analysis Dashboard"
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return dashboardTemplate.Execute(w, page)
	})
}

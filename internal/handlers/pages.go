package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/rfm"
	"rfm-dashboard/internal/services"
	"rfm-dashboard/internal/ui/templates"
)

const renderTimeout = 10 * time.Second

// TableLoader loads a whole transaction table from somewhere other than an
// upload, such as a database.
type TableLoader interface {
	Name() string
	Load(ctx context.Context) (*ingest.Table, error)
}

type PageHandlers struct {
	analyzer  *services.Analyzer
	loader    TableLoader
	maxUpload int64
	logger    *slog.Logger
}

// NewPageHandlers builds the browser facing handlers. loader may be nil.
func NewPageHandlers(analyzer *services.Analyzer, loader TableLoader, maxUpload int64, logger *slog.Logger) *PageHandlers {
	return &PageHandlers{
		analyzer:  analyzer,
		loader:    loader,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

func (h *PageHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, nil, nil)
}

// HandleUpload analyzes a form upload and redirects to the result page.
// Failures re-render the form with the reason.
func (h *PageHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	analysis, err := analyzeUpload(h.analyzer, r)
	if err != nil {
		h.fail(w, r, errors.FromAnalysis(err))
		return
	}
	http.Redirect(w, r, "/analyses/"+analysis.ID.String(), http.StatusSeeOther)
}

func (h *PageHandlers) HandleSourceAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		h.fail(w, r, errors.NotFound("No transaction table is configured"))
		return
	}

	table, err := h.loader.Load(r.Context())
	if err != nil {
		h.analyzer.RecordFailure(h.loader.Name(), err)
		h.fail(w, r, errors.FromAnalysis(err))
		return
	}

	analysis, err := h.analyzer.AnalyzeTable(r.Context(), h.loader.Name(), table)
	if err != nil {
		h.fail(w, r, errors.FromAnalysis(err))
		return
	}
	http.Redirect(w, r, "/analyses/"+analysis.ID.String(), http.StatusSeeOther)
}

func (h *PageHandlers) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.analyzer.Get(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, notFound(err))
		return
	}
	h.render(w, r, http.StatusOK, analysisView(analysis), nil)
}

func (h *PageHandlers) fail(w http.ResponseWriter, r *http.Request, appErr *errors.AppError) {
	level := slog.LevelWarn
	if appErr.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "analysis page failed",
		"error_code", appErr.Code,
		"cause", appErr.Cause,
		"request_id", observability.GetRequestID(r.Context()),
	)

	h.render(w, r, appErr.StatusCode, nil, &templates.Notice{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
		Fields:  appErr.Fields,
	})
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, status int, view *templates.AnalysisView, notice *templates.Notice) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	page := templates.Page{
		MaxUpload: formatBytes(h.maxUpload),
		Notice:    notice,
		Analysis:  view,
		Required:  rfm.RequiredColumns,
		HasSource: h.loader != nil,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := templates.Dashboard(page).Render(ctx, w); err != nil {
		h.logger.Error("render dashboard", "error", err)
	}
}

func analysisView(a *services.Analysis) *templates.AnalysisView {
	return &templates.AnalysisView{
		ID:            a.ID.String(),
		Source:        a.Source,
		Transactions:  a.Transactions,
		Customers:     len(a.Report.Customers),
		SnapshotDate:  a.Report.SnapshotDate,
		PreviewHeader: a.Preview.Header,
		PreviewRows:   a.Preview.Rows,
		Segments:      a.Report.Segments,
	}
}

func formatBytes(n int64) string {
	switch {
	case n <= 0:
		return "any size"
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MiB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KiB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

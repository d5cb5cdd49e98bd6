package handlers

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/export"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/services"
)

const (
	datasetField    = "dataset"
	multipartMemory = 8 << 20
	version         = "1.0.0"
)

// Analyses never change once stored.
var cacheHeaders = map[string]string{
	"Cache-Control": "private, max-age=300",
}

type APIHandlers struct {
	analyzer *services.Analyzer
	logger   *slog.Logger
}

func NewAPIHandlers(analyzer *services.Analyzer, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analyzer: analyzer,
		logger:   logger,
	}
}

// HandleCreateAnalysis accepts a multipart upload and answers with the
// analysis summary.
func (h *APIHandlers) HandleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	analysis, err := analyzeUpload(h.analyzer, r)
	if err != nil {
		errors.WriteError(w, h.logger, errors.FromAnalysis(err), requestID)
		return
	}

	w.Header().Set("Location", "/api/analyses/"+analysis.ID.String())
	errors.WriteSuccessStatus(w, http.StatusCreated, analysis.Summary())
}

// HandleLatest answers with the most recent live analysis.
func (h *APIHandlers) HandleLatest(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.analyzer.Latest()
	if err != nil {
		errors.WriteError(w, h.logger, notFound(err), observability.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Location", "/api/analyses/"+analysis.ID.String())
	errors.WriteSuccess(w, analysis.Summary())
}

func (h *APIHandlers) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, ok := h.lookup(w, r)
	if !ok {
		return
	}
	errors.WriteSuccess(w, analysis.Summary())
}

// HandleCustomers lists per-customer results, optionally narrowed to one
// segment with ?segment=.
func (h *APIHandlers) HandleCustomers(w http.ResponseWriter, r *http.Request) {
	analysis, ok := h.lookup(w, r)
	if !ok {
		return
	}

	customers := analysis.Report.Customers
	if segment := r.URL.Query().Get("segment"); segment != "" {
		if models.Segment(segment).Rank() == len(models.Segments) {
			errors.WriteError(w, h.logger,
				errors.BadRequest(fmt.Sprintf("Unknown segment %q", segment)),
				observability.GetRequestID(r.Context()))
			return
		}
		filtered := make([]models.CustomerRFM, 0, len(customers))
		for _, c := range customers {
			if c.Segment == models.Segment(segment) {
				filtered = append(filtered, c)
			}
		}
		customers = filtered
	}

	errors.WriteSuccessWithHeaders(w, customers, cacheHeaders)
}

func (h *APIHandlers) HandleSegments(w http.ResponseWriter, r *http.Request) {
	analysis, ok := h.lookup(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, analysis.Report.Segments, cacheHeaders)
}

func (h *APIHandlers) HandleScatter(w http.ResponseWriter, r *http.Request) {
	analysis, ok := h.lookup(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, analysis.Report.Scatter, cacheHeaders)
}

func (h *APIHandlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	analysis, ok := h.lookup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))

	if err := export.WriteCSV(w, analysis.Report.Customers); err != nil {
		// Headers are gone by now; all that is left is to log it.
		h.logger.Error("write export",
			"analysis_id", analysis.ID,
			"error", err,
			"request_id", observability.GetRequestID(r.Context()),
		)
	}
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version,
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.analyzer.Stats())
}

func (h *APIHandlers) lookup(w http.ResponseWriter, r *http.Request) (*services.Analysis, bool) {
	analysis, err := h.analyzer.Get(r.PathValue("id"))
	if err != nil {
		errors.WriteError(w, h.logger, notFound(err), observability.GetRequestID(r.Context()))
		return nil, false
	}
	return analysis, true
}

func notFound(err error) *errors.AppError {
	if stderrors.Is(err, services.ErrNotFound) {
		appErr := errors.NotFound("Analysis not found or expired. Upload the dataset again.")
		appErr.Cause = err
		return appErr
	}
	return errors.FromAnalysis(err)
}

// analyzeUpload pulls the dataset part out of a multipart request and runs it.
func analyzeUpload(analyzer *services.Analyzer, r *http.Request) (*services.Analysis, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		analyzer.RecordFailure("upload", err)
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errors.BadRequestWrap(err, "Expected a multipart form upload")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(datasetField)
	if err != nil {
		analyzer.RecordFailure("upload", err)
		return nil, errors.BadRequestWrap(err, "Choose a CSV or Excel file to upload")
	}
	defer file.Close()

	return analyzer.Analyze(r.Context(), header.Filename, file)
}

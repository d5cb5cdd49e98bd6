package server

import (
	"log/slog"
	"net/http"

	"rfm-dashboard/internal/handlers"
	"rfm-dashboard/internal/services"
)

type Server struct {
	analyzer     *services.Analyzer
	mux          *http.ServeMux
	logger       *slog.Logger
	apiHandlers  *handlers.APIHandlers
	sseHandlers  *handlers.SSEHandlers
	pageHandlers *handlers.PageHandlers
}

// Options carries the optional collaborators of the HTTP surface.
type Options struct {
	Loader    handlers.TableLoader
	MaxUpload int64
}

func NewServer(analyzer *services.Analyzer, logger *slog.Logger, opts Options) *Server {
	s := &Server{
		analyzer:     analyzer,
		mux:          http.NewServeMux(),
		logger:       logger,
		apiHandlers:  handlers.NewAPIHandlers(analyzer, logger),
		sseHandlers:  handlers.NewSSEHandlers(analyzer, logger),
		pageHandlers: handlers.NewPageHandlers(analyzer, opts.Loader, opts.MaxUpload, logger),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", s.pageHandlers.HandleDashboard)
	s.mux.HandleFunc("POST /analyses", s.pageHandlers.HandleUpload)
	s.mux.HandleFunc("POST /analyses/source", s.pageHandlers.HandleSourceAnalysis)
	s.mux.HandleFunc("GET /analyses/{id}", s.pageHandlers.HandleAnalysis)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints
	s.mux.HandleFunc("POST /api/analyses", s.apiHandlers.HandleCreateAnalysis)
	s.mux.HandleFunc("GET /api/analyses/latest", s.apiHandlers.HandleLatest)
	s.mux.HandleFunc("GET /api/analyses/{id}", s.apiHandlers.HandleGetAnalysis)
	s.mux.HandleFunc("GET /api/analyses/{id}/customers", s.apiHandlers.HandleCustomers)
	s.mux.HandleFunc("GET /api/analyses/{id}/segments", s.apiHandlers.HandleSegments)
	s.mux.HandleFunc("GET /api/analyses/{id}/scatter", s.apiHandlers.HandleScatter)
	s.mux.HandleFunc("GET /api/analyses/{id}/export", s.apiHandlers.HandleExport)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/analyses/{id}/table", s.sseHandlers.HandleResultsTable)
	s.mux.HandleFunc("GET /sse/analyses/{id}/charts", s.sseHandlers.HandleCharts)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

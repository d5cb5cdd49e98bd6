package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/rfm"
)

const (
	previewRows           = 5
	defaultTTL            = 30 * time.Minute
	defaultMaxSessions    = 64
	defaultPublishTimeout = 10 * time.Second
)

var ErrNotFound = errors.New("analysis not found")

// Publisher receives every completed report.
type Publisher interface {
	Publish(ctx context.Context, analysisID, source string, report *models.Report) error
}

// Analysis is one completed run over one dataset.
type Analysis struct {
	ID           uuid.UUID
	Source       string
	Transactions int
	CreatedAt    time.Time
	Preview      *ingest.Table
	Report       *models.Report
}

// Summary is the JSON view of an analysis without the per-customer rows.
type Summary struct {
	ID           string                `json:"id"`
	Source       string                `json:"source"`
	Transactions int                   `json:"transactions"`
	Customers    int                   `json:"customers"`
	SnapshotDate time.Time             `json:"snapshot_date"`
	CreatedAt    time.Time             `json:"created_at"`
	Segments     []models.SegmentCount `json:"segments"`
}

func (a *Analysis) Summary() Summary {
	return Summary{
		ID:           a.ID.String(),
		Source:       a.Source,
		Transactions: a.Transactions,
		Customers:    len(a.Report.Customers),
		SnapshotDate: a.Report.SnapshotDate,
		CreatedAt:    a.CreatedAt,
		Segments:     a.Report.Segments,
	}
}

type Options struct {
	Ingest         ingest.Options
	TTL            time.Duration
	MaxSessions    int
	Publisher      Publisher
	PublishTimeout time.Duration
}

// Analyzer runs datasets through ingestion and scoring and keeps the
// results in memory for the dashboard to read back.
type Analyzer struct {
	mu        sync.RWMutex
	analyses  map[uuid.UUID]*Analysis
	latest    uuid.UUID
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
	completed atomic.Int64
	failed    atomic.Int64
}

func NewAnalyzer(logger *slog.Logger, opts Options) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	return &Analyzer{
		analyses: make(map[uuid.UUID]*Analysis),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Analyze reads the dataset named name from r and computes its report.
func (a *Analyzer) Analyze(ctx context.Context, name string, r io.Reader) (*Analysis, error) {
	table, err := ingest.Read(name, r, a.opts.Ingest)
	if err != nil {
		a.failed.Add(1)
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return a.AnalyzeTable(ctx, name, table)
}

// RecordFailure counts a dataset that was rejected before it could be
// analyzed, such as a malformed upload request.
func (a *Analyzer) RecordFailure(source string, err error) {
	a.failed.Add(1)
	a.logger.Debug("dataset rejected", "source", source, "error", err)
}

// AnalyzeTable computes a report for an already loaded table.
func (a *Analyzer) AnalyzeTable(ctx context.Context, source string, table *ingest.Table) (*Analysis, error) {
	ctx, span := observability.StartSpan(ctx, "rfm.analyze")
	defer span.Log(ctx, a.logger)
	span.SetTag("source", source)
	span.SetTag("rows", strconv.Itoa(len(table.Rows)))

	analysis, err := a.compute(ctx, source, table)
	if err != nil {
		a.failed.Add(1)
		span.SetError(err)
		return nil, err
	}
	span.SetTag("customers", strconv.Itoa(len(analysis.Report.Customers)))

	a.store(analysis)
	a.completed.Add(1)

	a.logger.Info("analysis complete",
		"analysis_id", analysis.ID,
		"source", source,
		"transactions", analysis.Transactions,
		"customers", len(analysis.Report.Customers),
		"snapshot_date", analysis.Report.SnapshotDate.Format(time.DateOnly),
	)

	a.publish(ctx, analysis)
	return analysis, nil
}

func (a *Analyzer) compute(ctx context.Context, source string, table *ingest.Table) (*Analysis, error) {
	txs, err := ingest.Parse(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}

	report, err := rfm.Analyze(txs)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", source, err)
	}

	return &Analysis{
		ID:           uuid.New(),
		Source:       source,
		Transactions: len(txs),
		CreatedAt:    a.now(),
		Preview:      preview(table),
		Report:       report,
	}, nil
}

func (a *Analyzer) publish(ctx context.Context, analysis *Analysis) {
	if a.opts.Publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.PublishTimeout)
	defer cancel()

	if err := a.opts.Publisher.Publish(ctx, analysis.ID.String(), analysis.Source, analysis.Report); err != nil {
		a.logger.Warn("publish analysis failed",
			"analysis_id", analysis.ID,
			"error", err,
		)
	}
}

func (a *Analyzer) store(analysis *Analysis) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.evictLocked()
	for len(a.analyses) >= a.opts.MaxSessions {
		a.evictOldestLocked()
	}
	a.analyses[analysis.ID] = analysis
	a.latest = analysis.ID
}

// evictLocked drops expired analyses. Callers hold a.mu.
func (a *Analyzer) evictLocked() {
	cutoff := a.now().Add(-a.opts.TTL)
	for id, analysis := range a.analyses {
		if analysis.CreatedAt.Before(cutoff) {
			delete(a.analyses, id)
		}
	}
}

func (a *Analyzer) evictOldestLocked() {
	var (
		oldest uuid.UUID
		at     time.Time
	)
	for id, analysis := range a.analyses {
		if at.IsZero() || analysis.CreatedAt.Before(at) {
			oldest, at = id, analysis.CreatedAt
		}
	}
	delete(a.analyses, oldest)
}

// Get returns a live analysis by id.
func (a *Analyzer) Get(id string) (*Analysis, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	analysis, ok := a.analyses[parsed]
	if !ok || a.expired(analysis) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return analysis, nil
}

// Latest returns the most recent live analysis.
func (a *Analyzer) Latest() (*Analysis, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	analysis, ok := a.analyses[a.latest]
	if !ok || a.expired(analysis) {
		return nil, ErrNotFound
	}
	return analysis, nil
}

func (a *Analyzer) expired(analysis *Analysis) bool {
	return a.now().Sub(analysis.CreatedAt) > a.opts.TTL
}

func (a *Analyzer) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	live := make([]*Analysis, 0, len(a.analyses))
	for _, analysis := range a.analyses {
		if !a.expired(analysis) {
			live = append(live, analysis)
		}
	}

	stats := map[string]any{
		"sessions":           len(live),
		"max_sessions":       a.opts.MaxSessions,
		"session_ttl":        a.opts.TTL.String(),
		"analyses_completed": a.completed.Load(),
		"analyses_failed":    a.failed.Load(),
	}
	if len(live) > 0 {
		newest := slices.MaxFunc(live, func(x, y *Analysis) int {
			return x.CreatedAt.Compare(y.CreatedAt)
		})
		stats["last_analysis"] = newest.CreatedAt
	}
	return stats
}

func preview(table *ingest.Table) *ingest.Table {
	n := min(len(table.Rows), previewRows)
	rows := make([][]string, n)
	for i := range n {
		rows[i] = slices.Clone(table.Rows[i])
	}
	return &ingest.Table{
		Header: slices.Clone(table.Header),
		Rows:   rows,
	}
}

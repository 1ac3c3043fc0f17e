package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/awestray/backlay/internal/domain"
)

// ReportService defines the summary query the report handler requires.
type ReportService interface {
	Summarize(ctx context.Context, from, to time.Time, topN int) (domain.DailySummary, error)
}

// ManualReporter builds a today-so-far report on demand, outside the
// once-per-day schedule.
type ManualReporter interface {
	Manual(ctx context.Context) (string, error)
}

// ReportHandler serves the daily opportunity report endpoints.
type ReportHandler struct {
	opps     ReportService
	reporter ManualReporter // optional; when nil, TriggerReport returns 501
	logger   *slog.Logger
}

// NewReportHandler creates a ReportHandler with the given store and logger.
func NewReportHandler(opps ReportService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{opps: opps, logger: logger}
}

// WithReporter sets the manual reporter used by the trigger endpoint.
func (h *ReportHandler) WithReporter(reporter ManualReporter) *ReportHandler {
	h.reporter = reporter
	return h
}

// GetDaily returns the structured summary for one UTC day, defaulting to the
// previous complete day the automatic report covers.
// GET /api/report/daily?date=2026-03-14&limit=5
func (h *ReportHandler) GetDaily(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	if v := r.URL.Query().Get("date"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
			return
		}
		day = t
	}
	topN := parseLimit(r, 5, 50)

	summary, err := h.opps.Summarize(r.Context(), day, day.Add(24*time.Hour), topN)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: daily summary failed",
			slog.Time("day", day),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build daily summary")
		return
	}
	summary.Day = day

	writeJSON(w, http.StatusOK, summary)
}

// TriggerReport builds a today-so-far report immediately. It bypasses the
// once-per-day watermark and does not advance it, so the scheduled report
// still goes out.
// POST /api/report/daily
func (h *ReportHandler) TriggerReport(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		writeError(w, http.StatusNotImplemented, "reporter is not running in this mode")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: manual report requested")
	report, err := h.reporter.Manual(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: manual report failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"report":       report,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

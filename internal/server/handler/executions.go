package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/awestray/backlay/internal/domain"
)

// ExecutionService defines the methods the execution handler requires.
type ExecutionService interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error)
	GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error)
	MonthlyChurn(ctx context.Context, monthKey string) (float64, error)
}

// ExecutionHandler serves execution attempt endpoints.
type ExecutionHandler struct {
	execs  ExecutionService
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler with the given store and logger.
func NewExecutionHandler(execs ExecutionService, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{execs: execs, logger: logger}
}

// ListRecent returns the most recent execution attempts, newest first.
// GET /api/executions?limit=50
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 200)

	list, err := h.execs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list executions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if list == nil {
		list = []domain.ExecutionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"executions": list})
}

// GetExecution returns a single execution attempt by id.
// GET /api/executions/{id}
func (h *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing execution id")
		return
	}

	rec, err := h.execs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get execution failed",
			slog.String("execution_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

var monthKeyRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

// MonthlyChurn returns the summed back stakes of executed attempts for one
// month bucket, defaulting to the current UTC month.
// GET /api/executions/churn?month=2026-03
func (h *ExecutionHandler) MonthlyChurn(w http.ResponseWriter, r *http.Request) {
	month := domain.MonthKeyFor(time.Now())
	if v := r.URL.Query().Get("month"); v != "" {
		if !monthKeyRe.MatchString(v) {
			writeError(w, http.StatusBadRequest, "month must be formatted YYYY-MM")
			return
		}
		month = v
	}

	churn, err := h.execs.MonthlyChurn(r.Context(), month)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: monthly churn failed",
			slog.String("month", month),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute monthly churn")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"month": month,
		"churn": churn,
	})
}

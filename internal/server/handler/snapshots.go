package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/awestray/backlay/internal/domain"
)

// SnapshotService defines the query the snapshot handler requires.
type SnapshotService interface {
	ListRange(ctx context.Context, key domain.OutcomeKey, from, to time.Time) ([]domain.PriceSnapshot, error)
}

// SnapshotHandler serves price history samples for charting.
type SnapshotHandler struct {
	snaps  SnapshotService
	logger *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler with the given store and logger.
func NewSnapshotHandler(snaps SnapshotService, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{snaps: snaps, logger: logger}
}

// ListSnapshots returns price samples for one outcome over a time range,
// defaulting to the last hour.
// GET /api/snapshots?key=1.234::Arsenal&from=2026-03-14T11:00:00Z&to=2026-03-14T12:00:00Z
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	key := q.Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing outcome key")
		return
	}

	to := time.Now().UTC()
	if t, ok := parseTimeParam(q.Get("to")); ok {
		to = t
	}
	from := to.Add(-time.Hour)
	if t, ok := parseTimeParam(q.Get("from")); ok {
		from = t
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	snaps, err := h.snaps.ListRange(r.Context(), domain.OutcomeKey(key), from, to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list snapshots failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snaps == nil {
		snaps = []domain.PriceSnapshot{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"key":       key,
		"from":      from.Format(time.RFC3339),
		"to":        to.Format(time.RFC3339),
		"snapshots": snaps,
	})
}

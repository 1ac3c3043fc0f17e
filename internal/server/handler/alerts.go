package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/notify"
)

// AlertService defines the stream read the alert handler requires.
type AlertService interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// AlertHandler serves the alert history mirrored onto the signal bus.
type AlertHandler struct {
	bus    AlertService
	logger *slog.Logger
}

// NewAlertHandler creates an AlertHandler. bus may be nil when the signal bus
// is not configured.
func NewAlertHandler(bus AlertService, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{bus: bus, logger: logger}
}

// alertEntry pairs a stream ID with the mirrored alert payload. The payload
// is passed through verbatim so the handler does not re-declare its shape.
type alertEntry struct {
	ID    string          `json:"id"`
	Alert json.RawMessage `json:"alert"`
}

// ListAlerts returns alert history from the bus stream, oldest first. Pass
// the returned next cursor as after to page forward; live delivery is
// available over the WebSocket instead.
// GET /api/alerts?after=0&limit=50
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusNotImplemented, "signal bus not configured")
		return
	}

	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := parseLimit(r, 50, 200)

	msgs, err := h.bus.StreamRead(r.Context(), notify.AlertStream, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read alerts failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read alerts")
		return
	}

	entries := make([]alertEntry, 0, len(msgs))
	next := after
	for _, m := range msgs {
		entries = append(entries, alertEntry{ID: m.ID, Alert: json.RawMessage(m.Payload)})
		next = m.ID
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": entries,
		"next":   next,
	})
}

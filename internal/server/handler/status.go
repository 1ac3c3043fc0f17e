package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// OpenCounter reports how many opportunity episodes are currently open.
type OpenCounter interface {
	CountOpen(ctx context.Context) (int, error)
}

// FeedGauge is the slice of the feed store the status endpoint reads.
type FeedGauge interface {
	Count(ctx context.Context) (int64, error)
	HasInPlay(ctx context.Context) (bool, error)
}

// StatusHandler serves the backend status (mode, uptime, feed gauges) for
// the dashboard.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	opps      OpenCounter
	feeds     FeedGauge
	logger    *slog.Logger
}

func NewStatusHandler(mode string, startedAt time.Time, opps OpenCounter, feeds FeedGauge, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, opps: opps, feeds: feeds, logger: logger}
}

// GetStatus responds with the current backend mode and live gauges. Fields
// backed by unavailable stores are omitted rather than failing the request.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.opps != nil {
		if n, err := h.opps.CountOpen(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "status: count open opportunities", "error", err)
		} else {
			resp["open_opportunities"] = n
		}
	}
	if h.feeds != nil {
		if n, err := h.feeds.Count(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "status: count feed rows", "error", err)
		} else {
			resp["feed_rows"] = n
		}
		if inPlay, err := h.feeds.HasInPlay(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "status: in-play probe", "error", err)
		} else {
			resp["in_play"] = inPlay
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

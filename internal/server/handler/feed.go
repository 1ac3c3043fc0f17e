package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/awestray/backlay/internal/domain"
)

// FeedService defines the methods the feed handler requires from the feed
// store. It is declared locally so the handler package does not depend on the
// concrete store implementation.
type FeedService interface {
	ListActive(ctx context.Context) ([]domain.PricedOutcome, error)
	GetByKey(ctx context.Context, key domain.OutcomeKey) (domain.PricedOutcome, error)
}

// Kicker requests one immediate ingest pass, bypassing the poll timer.
type Kicker interface {
	Kick()
}

// FeedHandler serves the cross-venue price feed endpoints.
type FeedHandler struct {
	feeds  FeedService
	kicker Kicker
	logger *slog.Logger
}

// NewFeedHandler creates a FeedHandler. kicker may be nil when no ingest loop
// runs in this mode.
func NewFeedHandler(feeds FeedService, kicker Kicker, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		feeds:  feeds,
		kicker: kicker,
		logger: logger,
	}
}

// listFeedResponse wraps the list endpoint output with metadata.
type listFeedResponse struct {
	Rows   []domain.PricedOutcome `json:"rows"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// ListFeed returns active feed rows ordered by kickoff time.
// GET /api/feed?limit=50&offset=0
func (h *FeedHandler) ListFeed(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	rows, err := h.feeds.ListActive(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list feed failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list feed")
		return
	}

	total := len(rows)
	if opts.Offset >= total {
		rows = nil
	} else {
		rows = rows[opts.Offset:]
		if len(rows) > opts.Limit {
			rows = rows[:opts.Limit]
		}
	}

	writeJSON(w, http.StatusOK, listFeedResponse{
		Rows:   rows,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetOutcome returns a single feed row by its outcome key. The key contains a
// "::" separator, so the route uses a trailing wildcard.
// GET /api/feed/{key...}
func (h *FeedHandler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing outcome key")
		return
	}

	row, err := h.feeds.GetByKey(r.Context(), domain.OutcomeKey(key))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "outcome not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get outcome failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get outcome")
		return
	}

	writeJSON(w, http.StatusOK, row)
}

// RefreshFeed enqueues one immediate ingest pass. The ingest loop coalesces
// kicks, so repeated calls while a pass is pending are a no-op.
// POST /api/feed/refresh
func (h *FeedHandler) RefreshFeed(w http.ResponseWriter, r *http.Request) {
	if h.kicker == nil {
		writeError(w, http.StatusNotImplemented, "ingest is not running in this mode")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: feed refresh requested")
	h.kicker.Kick()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "feed refresh enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

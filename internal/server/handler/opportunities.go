package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/awestray/backlay/internal/domain"
)

// OpportunityService defines the methods the opportunity handler requires.
type OpportunityService interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error)
	CountOpen(ctx context.Context) (int, error)
}

// OpportunityHandler serves opportunity episode endpoints.
type OpportunityHandler struct {
	opps   OpportunityService
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler with the given store and logger.
func NewOpportunityHandler(opps OpportunityService, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{opps: opps, logger: logger}
}

// listOpportunitiesResponse wraps the list endpoint output.
type listOpportunitiesResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
	OpenCount     int                  `json:"open_count"`
}

// ListRecent returns the most recent opportunity episodes, open and closed,
// newest first.
// GET /api/opportunities?limit=50
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 200)

	opps, err := h.opps.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}

	open, err := h.opps.CountOpen(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count open opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count open opportunities")
		return
	}

	writeJSON(w, http.StatusOK, listOpportunitiesResponse{
		Opportunities: opps,
		OpenCount:     open,
	})
}

package betfair

import (
	"context"
	"fmt"
	"strings"

	"github.com/awestray/backlay/internal/domain"
)

// Order field values used when hedging.
const (
	orderTypeLimit   = "LIMIT"
	sideLay          = "LAY"
	persistenceLapse = "LAPSE"
	reportSuccess    = "SUCCESS"
)

// Venue adapts the exchange client to the lay side of an execution.
type Venue struct {
	client *Client
}

func NewVenue(client *Client) *Venue {
	return &Venue{client: client}
}

// RevalidateMarket fetches the market's live book and resolves the runner
// named in the context.
func (v *Venue) RevalidateMarket(ctx context.Context, ec domain.ExecutionContext) (domain.MarketState, error) {
	books, err := v.client.ListMarketBook(ctx, []string{ec.MarketID}, PriceProjection{
		PriceData: []string{PriceDataBestOffers},
	})
	if err != nil {
		return domain.MarketState{}, fmt.Errorf("betfair: revalidate market %s: %w", ec.MarketID, err)
	}
	if len(books) == 0 {
		return domain.MarketState{}, fmt.Errorf("betfair: market %s: %w", ec.MarketID, domain.ErrMarketNotFound)
	}

	book := books[0]
	state := domain.MarketState{
		Status:      book.Status,
		InPlay:      book.InPlay,
		SelectionID: ec.SelectionID,
	}

	runner := book.FindRunner(ec.SelectionID)
	if runner == nil {
		return state, nil
	}
	state.RunnerActive = runner.Status == RunnerStatusActive
	state.BestLayPrice, state.BestLaySize = runner.BestLay()
	return state, nil
}

// PlaceLayBet submits a limit lay order that lapses if unmatched at the off.
func (v *Venue) PlaceLayBet(ctx context.Context, ec domain.ExecutionContext, price, stake float64) (string, error) {
	instructions := []PlaceInstruction{{
		OrderType:   orderTypeLimit,
		SelectionID: ec.SelectionID,
		Side:        sideLay,
		LimitOrder: &LimitOrder{
			Size:            stake,
			Price:           price,
			PersistenceType: persistenceLapse,
		},
	}}

	report, err := v.client.PlaceOrders(ctx, ec.MarketID, instructions, customerRef(ec.ID))
	if err != nil {
		return "", fmt.Errorf("betfair: place lay order: %w", err)
	}

	if report.Status != reportSuccess {
		code := report.ErrorCode
		if len(report.InstructionReports) > 0 && report.InstructionReports[0].ErrorCode != "" {
			code = report.InstructionReports[0].ErrorCode
		}
		return "", fmt.Errorf("betfair: lay order refused: %s: %w", code, domain.ErrOrderRejected)
	}
	if len(report.InstructionReports) == 0 || report.InstructionReports[0].BetID == "" {
		return "", fmt.Errorf("betfair: lay order accepted without bet id: %w", domain.ErrOrderRejected)
	}
	return report.InstructionReports[0].BetID, nil
}

// customerRef squeezes an execution ID into Betfair's 32-character limit by
// stripping UUID hyphens.
func customerRef(id string) string {
	ref := strings.ReplaceAll(id, "-", "")
	if len(ref) > 32 {
		ref = ref[:32]
	}
	return ref
}

var _ domain.LayVenue = (*Venue)(nil)

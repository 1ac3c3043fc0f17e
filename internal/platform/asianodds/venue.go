package asianodds

import (
	"context"
	"fmt"
	"strings"

	"github.com/awestray/backlay/internal/domain"
)

// Venue adapts the AsianOdds client to the back-venue side of an execution.
type Venue struct {
	client     *Client
	oddsFormat string
}

// NewVenue wraps a client for execution use. oddsFormat falls back to
// decimal when empty.
func NewVenue(client *Client, oddsFormat string) *Venue {
	if oddsFormat == "" {
		oddsFormat = OddsFormatDecimal
	}
	return &Venue{client: client, oddsFormat: oddsFormat}
}

func placementRequest(ec domain.ExecutionContext, oddsFormat string) PlacementRequest {
	return PlacementRequest{
		GameID:       ec.Back.GameID,
		GameType:     ec.Back.GameType,
		IsFullTime:   ec.Back.IsFullTime,
		Bookies:      ec.Back.Bookie,
		MarketTypeID: ec.Back.MarketTypeID,
		OddsFormat:   oddsFormat,
		OddsName:     ec.Back.OddsName,
		SportsType:   ec.Back.SportsType,
	}
}

// RevalidatePrice asks the sportsbook for the live price and stake bounds on
// the context's outcome.
func (v *Venue) RevalidatePrice(ctx context.Context, ec domain.ExecutionContext) (domain.PlacementInfo, error) {
	placements, err := v.client.GetPlacementInfo(ctx, placementRequest(ec, v.oddsFormat))
	if err != nil {
		return domain.PlacementInfo{}, err
	}
	if len(placements) == 0 {
		return domain.PlacementInfo{}, fmt.Errorf("asianodds: no placement data for game %d", ec.Back.GameID)
	}

	// Prefer the bookie the context was detected against.
	placement := placements[0]
	for _, p := range placements {
		if strings.EqualFold(p.Bookie, ec.Back.Bookie) {
			placement = p
			break
		}
	}

	if placement.Rejected {
		return domain.PlacementInfo{}, fmt.Errorf("asianodds: placement rejected for game %d: %s: %w",
			ec.Back.GameID, placement.Message, domain.ErrPlacementRejected)
	}

	info := domain.PlacementInfo{
		Price:    placement.EffectivePrice(),
		MinStake: placement.MinimumAmount,
		MaxStake: placement.MaximumAmount,
	}
	return info, nil
}

// PlaceBackBet submits the back bet. The execution ID doubles as the
// idempotency key the API echoes back.
func (v *Venue) PlaceBackBet(ctx context.Context, ec domain.ExecutionContext, price, stake float64) (string, error) {
	pr := placementRequest(ec, v.oddsFormat)
	req := BetRequest{
		PlaceBetID:   ec.ID,
		GameID:       pr.GameID,
		GameType:     pr.GameType,
		IsFullTime:   pr.IsFullTime,
		MarketTypeID: pr.MarketTypeID,
		OddsFormat:   pr.OddsFormat,
		OddsName:     pr.OddsName,
		SportsType:   pr.SportsType,
		BookieOdds:   FormatBookieOdds(ec.Back.Bookie, price),
		Amount:       stake,
	}

	ref, err := v.client.PlaceBet(ctx, req)
	if err != nil {
		return "", err
	}
	if ref == "" {
		return "", domain.ErrNoReference
	}
	return ref, nil
}

// PollBetStatus maps the sportsbook's status vocabulary onto confirmation
// states. Unknown statuses stay pending so the poll loop keeps going.
func (v *Venue) PollBetStatus(ctx context.Context, reference string) (domain.BetConfirmation, error) {
	rec, err := v.client.GetBetByReference(ctx, reference)
	if err != nil {
		return domain.BetConfirmation{}, err
	}

	conf := domain.BetConfirmation{Detail: rec.Status}
	switch strings.ToLower(rec.Status) {
	case "confirmed", "accepted", "running":
		conf.Status = domain.BetConfirmed
		conf.ConfirmedStake = rec.ConfirmedStake
		if conf.ConfirmedStake == 0 {
			conf.ConfirmedStake = rec.Stake
		}
	case "rejected":
		conf.Status = domain.BetRejected
	case "cancelled", "void":
		conf.Status = domain.BetVoided
	default:
		conf.Status = domain.BetPending
	}
	return conf, nil
}

// Compile-time interface check.
var _ domain.BackVenue = (*Venue)(nil)

package domain

import "context"

// PlacementInfo is the back venue's live answer for one outcome: the price
// it will honor right now and the stake bounds it will accept.
type PlacementInfo struct {
	Price    float64
	MinStake float64
	MaxStake float64
}

// MarketState is the lay venue's live view of one market, resolved down to
// the runner the caller asked about.
type MarketState struct {
	Status       string
	InPlay       bool
	RunnerActive bool
	SelectionID  int64
	BestLayPrice float64
	BestLaySize  float64
}

// BetStatus classifies a back bet's confirmation state.
type BetStatus string

const (
	BetPending   BetStatus = "pending"
	BetConfirmed BetStatus = "confirmed"
	BetRejected  BetStatus = "rejected"
	BetVoided    BetStatus = "voided"
)

// BetConfirmation is one poll result for a placed back bet. Detail carries
// the venue's raw status string for logging.
type BetConfirmation struct {
	Status         BetStatus
	ConfirmedStake float64
	Detail         string
}

// BackVenue is the sportsbook side of an execution: quote, place, confirm.
type BackVenue interface {
	// RevalidatePrice fetches the live price and stake bounds for the
	// outcome. Implementations must not place anything.
	RevalidatePrice(ctx context.Context, ec ExecutionContext) (PlacementInfo, error)

	// PlaceBackBet submits the back bet at the quoted price and returns the
	// venue's bet reference. ErrPlacementRejected means the venue refused;
	// ErrNoReference means it accepted without a usable reference.
	PlaceBackBet(ctx context.Context, ec ExecutionContext, price, stake float64) (string, error)

	// PollBetStatus fetches the current confirmation state of a placed bet.
	PollBetStatus(ctx context.Context, reference string) (BetConfirmation, error)
}

// LayVenue is the exchange side of an execution: revalidate, then hedge.
type LayVenue interface {
	// RevalidateMarket fetches the market's live state and resolves the
	// runner named in the context. ErrMarketNotFound means the market is no
	// longer listed.
	RevalidateMarket(ctx context.Context, ec ExecutionContext) (MarketState, error)

	// PlaceLayBet submits a lay order at the given price and stake and
	// returns the venue's bet ID. ErrOrderRejected means the venue refused.
	PlaceLayBet(ctx context.Context, ec ExecutionContext, price, stake float64) (string, error)
}

package betfair

import (
	"context"
	"time"
)

// Market projection fields requested from listMarketCatalogue.
const (
	ProjectionMarketStartTime = "MARKET_START_TIME"
	ProjectionEvent           = "EVENT"
	ProjectionCompetition     = "COMPETITION"
	ProjectionRunnerMetadata  = "RUNNER_METADATA"
)

// Price data requested from listMarketBook.
const (
	PriceDataBestOffers = "EX_BEST_OFFERS"
	PriceDataTraded     = "EX_TRADED"
)

// MarketTypeMatchOdds is the 1X2 market on an event.
const MarketTypeMatchOdds = "MATCH_ODDS"

// Market and runner status values reported by listMarketBook.
const (
	MarketStatusOpen      = "OPEN"
	MarketStatusSuspended = "SUSPENDED"
	MarketStatusClosed    = "CLOSED"
	RunnerStatusActive    = "ACTIVE"
)

// SortMaxTraded orders catalogue results by traded volume, busiest first.
const SortMaxTraded = "MAXIMUM_TRADED"

// TimeRange bounds a market start time filter. Times are RFC 3339.
type TimeRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// MarketFilter narrows listMarketCatalogue results.
type MarketFilter struct {
	TextQuery       string     `json:"textQuery,omitempty"`
	EventTypeIDs    []string   `json:"eventTypeIds,omitempty"`
	CompetitionIDs  []string   `json:"competitionIds,omitempty"`
	MarketIDs       []string   `json:"marketIds,omitempty"`
	MarketTypeCodes []string   `json:"marketTypeCodes,omitempty"`
	MarketStartTime *TimeRange `json:"marketStartTime,omitempty"`
}

// Event is the fixture a market belongs to.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CountryCode string    `json:"countryCode"`
	OpenDate    time.Time `json:"openDate"`
}

// Competition is the league or tournament of an event.
type Competition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RunnerCatalog describes one selection in a market.
type RunnerCatalog struct {
	SelectionID  int64   `json:"selectionId"`
	RunnerName   string  `json:"runnerName"`
	Handicap     float64 `json:"handicap"`
	SortPriority int     `json:"sortPriority"`
}

// MarketCatalogue is the static description of one market.
type MarketCatalogue struct {
	MarketID        string          `json:"marketId"`
	MarketName      string          `json:"marketName"`
	MarketStartTime time.Time       `json:"marketStartTime"`
	TotalMatched    float64         `json:"totalMatched"`
	Event           *Event          `json:"event"`
	Competition     *Competition    `json:"competition"`
	Runners         []RunnerCatalog `json:"runners"`
}

// PriceSize is one rung of an order book ladder.
type PriceSize struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// ExchangePrices is the visible order book for one runner.
type ExchangePrices struct {
	AvailableToBack []PriceSize `json:"availableToBack"`
	AvailableToLay  []PriceSize `json:"availableToLay"`
	TradedVolume    []PriceSize `json:"tradedVolume"`
}

// Runner is the live state of one selection.
type Runner struct {
	SelectionID     int64           `json:"selectionId"`
	Status          string          `json:"status"`
	LastPriceTraded float64         `json:"lastPriceTraded"`
	EX              *ExchangePrices `json:"ex"`
}

// BestLay returns the best available lay price and size, or zeros when the
// ladder is empty.
func (r Runner) BestLay() (price, size float64) {
	if r.EX == nil || len(r.EX.AvailableToLay) == 0 {
		return 0, 0
	}
	best := r.EX.AvailableToLay[0]
	return best.Price, best.Size
}

// BestBack returns the best available back price and size, or zeros when the
// ladder is empty.
func (r Runner) BestBack() (price, size float64) {
	if r.EX == nil || len(r.EX.AvailableToBack) == 0 {
		return 0, 0
	}
	best := r.EX.AvailableToBack[0]
	return best.Price, best.Size
}

// MarketBook is the live state of one market.
type MarketBook struct {
	MarketID     string   `json:"marketId"`
	Status       string   `json:"status"`
	InPlay       bool     `json:"inplay"`
	TotalMatched float64  `json:"totalMatched"`
	Runners      []Runner `json:"runners"`
}

// FindRunner returns the runner with the given selection ID, or nil.
func (b *MarketBook) FindRunner(selectionID int64) *Runner {
	for i := range b.Runners {
		if b.Runners[i].SelectionID == selectionID {
			return &b.Runners[i]
		}
	}
	return nil
}

// PriceProjection selects the price data returned by listMarketBook.
type PriceProjection struct {
	PriceData  []string `json:"priceData,omitempty"`
	Virtualise bool     `json:"virtualise,omitempty"`
}

// LimitOrder places size at a fixed price.
type LimitOrder struct {
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	PersistenceType string  `json:"persistenceType"`
}

// PlaceInstruction is one order within a placeOrders call.
type PlaceInstruction struct {
	OrderType   string      `json:"orderType"`
	SelectionID int64       `json:"selectionId"`
	Side        string      `json:"side"`
	LimitOrder  *LimitOrder `json:"limitOrder,omitempty"`
}

// PlaceInstructionReport is the per-instruction outcome of placeOrders.
type PlaceInstructionReport struct {
	Status              string  `json:"status"`
	ErrorCode           string  `json:"errorCode"`
	OrderStatus         string  `json:"orderStatus"`
	BetID               string  `json:"betId"`
	AveragePriceMatched float64 `json:"averagePriceMatched"`
	SizeMatched         float64 `json:"sizeMatched"`
}

// PlaceExecutionReport is the overall outcome of placeOrders.
type PlaceExecutionReport struct {
	Status             string                   `json:"status"`
	ErrorCode          string                   `json:"errorCode"`
	MarketID           string                   `json:"marketId"`
	InstructionReports []PlaceInstructionReport `json:"instructionReports"`
}

// ListMarketCatalogue fetches market descriptions matching the filter.
func (c *Client) ListMarketCatalogue(ctx context.Context, filter MarketFilter, projection []string, sort string, maxResults int) ([]MarketCatalogue, error) {
	req := struct {
		Filter           MarketFilter `json:"filter"`
		MarketProjection []string     `json:"marketProjection,omitempty"`
		Sort             string       `json:"sort,omitempty"`
		MaxResults       int          `json:"maxResults"`
	}{
		Filter:           filter,
		MarketProjection: projection,
		Sort:             sort,
		MaxResults:       maxResults,
	}

	var out []MarketCatalogue
	if err := c.invoke(ctx, "listMarketCatalogue", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMarketBook fetches the live order books for the given markets. Callers
// should batch market IDs in small chunks to stay under the API weight limit.
func (c *Client) ListMarketBook(ctx context.Context, marketIDs []string, projection PriceProjection) ([]MarketBook, error) {
	req := struct {
		MarketIDs       []string        `json:"marketIds"`
		PriceProjection PriceProjection `json:"priceProjection"`
	}{
		MarketIDs:       marketIDs,
		PriceProjection: projection,
	}

	var out []MarketBook
	if err := c.invoke(ctx, "listMarketBook", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlaceOrders submits orders into one market. customerRef deduplicates
// retries of the same logical placement; Betfair limits it to 32 characters.
func (c *Client) PlaceOrders(ctx context.Context, marketID string, instructions []PlaceInstruction, customerRef string) (*PlaceExecutionReport, error) {
	req := struct {
		MarketID     string             `json:"marketId"`
		Instructions []PlaceInstruction `json:"instructions"`
		CustomerRef  string             `json:"customerRef,omitempty"`
	}{
		MarketID:     marketID,
		Instructions: instructions,
		CustomerRef:  customerRef,
	}

	var out PlaceExecutionReport
	if err := c.invoke(ctx, "placeOrders", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

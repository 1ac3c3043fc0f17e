package domain

import (
	"fmt"
	"strings"
	"time"
)

// OutcomeKey identifies a single priced outcome across venues. It is the
// lay-venue market ID joined with the runner name, e.g.
// "1.234567890::Arsenal".
type OutcomeKey string

func MakeOutcomeKey(marketID, runner string) OutcomeKey {
	return OutcomeKey(marketID + "::" + runner)
}

// Split returns the market ID and runner name components. The runner part is
// empty when the key was not produced by MakeOutcomeKey.
func (k OutcomeKey) Split() (marketID, runner string) {
	parts := strings.SplitN(string(k), "::", 2)
	if len(parts) != 2 {
		return string(k), ""
	}
	return parts[0], parts[1]
}

func (k OutcomeKey) String() string { return string(k) }

// PricedOutcome is one row of the cross-venue feed: the freshest back price
// from the sportsbook and lay price from the exchange for a single outcome,
// plus the metadata needed to display and execute it.
type PricedOutcome struct {
	Key    OutcomeKey
	Sport  string
	Event  string
	Runner string

	// Lay venue (exchange).
	MarketID     string
	SelectionID  int64
	LayPrice     float64
	LaySize      float64
	MarketStatus string
	InPlay       bool
	TotalMatched float64

	// Back venue (sportsbook).
	BackPrice float64
	Back      BackRef

	StartTime time.Time
	UpdatedAt time.Time
}

// Stale reports whether the quote is older than maxAge at the given instant.
func (p PricedOutcome) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(p.UpdatedAt) > maxAge
}

// BackRef carries the sportsbook-side identifiers required to request
// placement info and place a bet on this outcome. The fields mirror the
// sportsbook's placement API and are captured at feed-ingest time.
type BackRef struct {
	GameID       int64
	GameType     string
	IsFullTime   int
	MarketTypeID int
	OddsName     string
	SportsType   int
	Bookie       string
}

func (b BackRef) Valid() bool {
	return b.GameID != 0 && b.OddsName != "" && b.Bookie != ""
}

func (b BackRef) String() string {
	return fmt.Sprintf("game=%d odds=%s bookie=%s", b.GameID, b.OddsName, b.Bookie)
}

// PriceSnapshot is a periodic point-in-time sample of one outcome's prices,
// kept for a short retention window to support steam detection and charts.
type PriceSnapshot struct {
	Key       OutcomeKey
	MarketID  string
	Sport     string
	Event     string
	Runner    string
	BackPrice float64
	LayPrice  float64
	MidPrice  float64
	Volume    float64
	At        time.Time
}

package asianodds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Price positions inside a BookieOdds price list. Three-way markets carry
// home, away, draw in that order; two-way markets stop at away (or under).
const (
	PosHome  = 0
	PosAway  = 1
	PosDraw  = 2
	PosOver  = 0
	PosUnder = 1
)

// SportFeed is one sport's slice of a GetFeeds response.
type SportFeed struct {
	SportsType int         `json:"SportsType"`
	MatchGames []MatchGame `json:"MatchGames"`
}

// Team wraps the nested name objects the feed uses.
type Team struct {
	Name string `json:"Name"`
}

// OddsBlock is one market's odds for a match: a packed per-bookie price
// string plus the line for handicap and total markets.
type OddsBlock struct {
	BookieOdds string `json:"BookieOdds"`
	Handicap   string `json:"Handicap"`
	Goal       string `json:"Goal"`
}

// MatchGame is a single match entry from the feed. One physical match
// appears once per bet type, each with its own GameId.
type MatchGame struct {
	GameID        int64  `json:"GameId"`
	LeagueName    string `json:"LeagueName"`
	HomeTeam      Team   `json:"HomeTeam"`
	AwayTeam      Team   `json:"AwayTeam"`
	StartTime     int64  `json:"StartTime"` // ms since epoch
	WillBeRemoved bool   `json:"WillBeRemoved"`
	// IsActive is a pointer because the feed omits it for active entries.
	IsActive *bool `json:"IsActive"`

	FullTimeOneXTwo *OddsBlock `json:"FullTimeOneXTwo"`
	FullTimeHdp     *OddsBlock `json:"FullTimeHdp"`
	FullTimeOu      *OddsBlock `json:"FullTimeOu"`
}

// Active reports whether the entry is live in the feed.
func (m MatchGame) Active() bool {
	return !m.WillBeRemoved && (m.IsActive == nil || *m.IsActive)
}

// Kickoff converts the millisecond epoch start time.
func (m MatchGame) Kickoff() time.Time {
	return time.UnixMilli(m.StartTime).UTC()
}

// GetFeeds fetches the odds feed for one sport and market window.
// Pass since=0 for a full snapshot; subsequent calls can pass the previous
// response's timestamp for deltas.
func (c *Client) GetFeeds(ctx context.Context, sportsType, marketTypeID int, oddsFormat string, since int64) ([]SportFeed, error) {
	params := url.Values{}
	params.Set("sportsType", strconv.Itoa(sportsType))
	params.Set("marketTypeId", strconv.Itoa(marketTypeID))
	params.Set("oddsFormat", oddsFormat)
	params.Set("since", strconv.FormatInt(since, 10))

	result, err := c.call(ctx, http.MethodGet, "GetFeeds", params, nil)
	if err != nil {
		return nil, err
	}

	var res struct {
		Sports []SportFeed `json:"Sports"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("asianodds: decode feeds: %w", err)
	}
	return res.Sports, nil
}

// bareOddsRe matches entries with no separator between bookie code and
// prices, e.g. "SIN2.26,1.61".
var bareOddsRe = regexp.MustCompile(`^([A-Za-z]+)([\d.,]+)$`)

// ParseBookieOdds unpacks a BookieOdds string into per-bookie price lists.
//
// The feed packs prices as "PIN=2.26,1.61,3.4;SIN:2.30,1.58;BEST:...". The
// BEST section is an aggregate and is skipped; entries whose first two prices
// are not both above 1.0 are placeholder rows and are dropped.
func ParseBookieOdds(s string) map[string][]float64 {
	if s == "" {
		return nil
	}

	out := make(map[string][]float64)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" || strings.HasPrefix(strings.ToUpper(part), "BEST") {
			continue
		}

		var bookie, pricesStr string
		if i := strings.IndexByte(part, '='); i > 0 {
			bookie, pricesStr = part[:i], part[i+1:]
		} else if i := strings.IndexByte(part, ':'); i > 0 {
			bookie, pricesStr = part[:i], part[i+1:]
		} else if m := bareOddsRe.FindStringSubmatch(part); m != nil {
			bookie, pricesStr = m[1], m[2]
		} else {
			continue
		}

		bookie = strings.ToUpper(strings.TrimSpace(bookie))
		if bookie == "" || pricesStr == "" {
			continue
		}

		fields := strings.Split(pricesStr, ",")
		prices := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				v = 0
			}
			prices[i] = v
		}
		if len(prices) < 2 || prices[0] <= 1.0 || prices[1] <= 1.0 {
			continue
		}
		out[bookie] = prices
	}
	return out
}

// BestPrice returns the highest price at the given position across all
// bookies in a parsed odds map, with the bookie offering it.
func BestPrice(odds map[string][]float64, pos int) (float64, string) {
	var best float64
	var bookie string
	for b, prices := range odds {
		if pos >= len(prices) {
			continue
		}
		if prices[pos] > best {
			best = prices[pos]
			bookie = b
		}
	}
	return best, bookie
}

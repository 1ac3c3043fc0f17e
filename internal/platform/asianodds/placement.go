package asianodds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Game type codes for placement requests.
const (
	GameTypeOneXTwo   = "X"
	GameTypeHandicap  = "H"
	GameTypeOverUnder = "O"
)

// Odds names identifying the side of a market.
const (
	OddsNameHome  = "HomeOdds"
	OddsNameAway  = "AwayOdds"
	OddsNameDraw  = "DrawOdds"
	OddsNameOver  = "OverOdds"
	OddsNameUnder = "UnderOdds"
)

// PlacementRequest asks the API for live price and stake limits on one
// outcome at one or more bookies.
type PlacementRequest struct {
	GameID       int64  `json:"GameId"`
	GameType     string `json:"GameType"`
	IsFullTime   int    `json:"IsFullTime"`
	Bookies      string `json:"Bookies"`
	MarketTypeID int    `json:"MarketTypeId"`
	OddsFormat   string `json:"OddsFormat"`
	OddsName     string `json:"OddsName"`
	SportsType   int    `json:"SportsType"`
	Timeout      int    `json:"Timeout,omitempty"`
}

// OddsPlacement is one bookie's answer to a placement query.
type OddsPlacement struct {
	Bookie        string  `json:"Bookie"`
	Price         float64 `json:"Price"`
	Odds          float64 `json:"Odds"`
	MinimumAmount float64 `json:"MinimumAmount"`
	MaximumAmount float64 `json:"MaximumAmount"`
	Rejected      bool    `json:"Rejected"`
	Currency      string  `json:"Currency"`
	HDPOrGoal     string  `json:"HDPorGoal"`
	Message       string  `json:"Message"`
}

// EffectivePrice returns whichever of the two price fields the API chose to
// populate.
func (p OddsPlacement) EffectivePrice() float64 {
	if p.Price > 0 {
		return p.Price
	}
	return p.Odds
}

// GetPlacementInfo returns live placement terms for one outcome.
func (c *Client) GetPlacementInfo(ctx context.Context, req PlacementRequest) ([]OddsPlacement, error) {
	result, err := c.call(ctx, http.MethodPost, "GetPlacementInfo", nil, req)
	if err != nil {
		return nil, err
	}

	// Older gateway versions return PlacementData instead.
	var res struct {
		OddsPlacementData []OddsPlacement `json:"OddsPlacementData"`
		PlacementData     []OddsPlacement `json:"PlacementData"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("asianodds: decode placement info: %w", err)
	}
	if len(res.OddsPlacementData) > 0 {
		return res.OddsPlacementData, nil
	}
	return res.PlacementData, nil
}

// BetRequest places a single back bet. BookieOdds packs the chosen bookie
// and price as "BOOKIE:PRICE".
type BetRequest struct {
	PlaceBetID   string  `json:"PlaceBetId"`
	GameID       int64   `json:"GameId"`
	GameType     string  `json:"GameType"`
	IsFullTime   int     `json:"IsFullTime"`
	MarketTypeID int     `json:"MarketTypeId"`
	OddsFormat   string  `json:"OddsFormat"`
	OddsName     string  `json:"OddsName"`
	SportsType   int     `json:"SportsType"`
	BookieOdds   string  `json:"BookieOdds"`
	Amount       float64 `json:"Amount"`
}

// FormatBookieOdds builds the BookieOdds value for a BetRequest.
func FormatBookieOdds(bookie string, price float64) string {
	return fmt.Sprintf("%s:%g", bookie, price)
}

// PlaceBet submits a back bet and returns the placement reference. An
// accepted bet can still come back without a reference; callers must treat
// an empty reference as unknown exposure, not as failure.
func (c *Client) PlaceBet(ctx context.Context, req BetRequest) (string, error) {
	result, err := c.call(ctx, http.MethodPost, "PlaceBet", nil, req)
	if err != nil {
		return "", err
	}

	// Two response shapes exist: a PlacementData list and a flat result.
	var res struct {
		PlacementData []struct {
			BetPlacementReference string `json:"BetPlacementReference"`
			Message               string `json:"Message"`
		} `json:"PlacementData"`
		BetPlacementReference string `json:"BetPlacementReference"`
		PlaceBetID            string `json:"PlaceBetId"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return "", fmt.Errorf("asianodds: decode place bet: %w", err)
	}

	if len(res.PlacementData) > 0 && res.PlacementData[0].BetPlacementReference != "" {
		return res.PlacementData[0].BetPlacementReference, nil
	}
	if res.BetPlacementReference != "" {
		return res.BetPlacementReference, nil
	}
	return res.PlaceBetID, nil
}

// BetRecord is the state of a placed bet as reported by the API.
type BetRecord struct {
	Status          string  `json:"Status"`
	Bookie          string  `json:"Bookie"`
	Odds            float64 `json:"Odds"`
	Stake           float64 `json:"Stake"`
	ConfirmedStake  float64 `json:"ConfirmedStake"`
	Currency        string  `json:"Currency"`
	ReferenceNumber string  `json:"ReferenceNumber"`
}

// GetBetByReference looks up a placed bet by its placement reference.
func (c *Client) GetBetByReference(ctx context.Context, ref string) (BetRecord, error) {
	params := url.Values{}
	params.Set("betReference", ref)

	result, err := c.call(ctx, http.MethodGet, "GetBetByReference", params, nil)
	if err != nil {
		return BetRecord{}, err
	}

	// The record arrives either as a one-element list under one of several
	// keys or flat in the result.
	var res struct {
		Bets    []BetRecord `json:"Bets"`
		BetList []BetRecord `json:"BetList"`
		Data    []BetRecord `json:"Data"`
		BetRecord
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return BetRecord{}, fmt.Errorf("asianodds: decode bet %s: %w", ref, err)
	}

	switch {
	case len(res.Bets) > 0:
		return res.Bets[0], nil
	case len(res.BetList) > 0:
		return res.BetList[0], nil
	case len(res.Data) > 0:
		return res.Data[0], nil
	}
	return res.BetRecord, nil
}

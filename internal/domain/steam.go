package domain

import "time"

// SteamSource names the venue whose price moved.
type SteamSource string

const (
	SteamSourceSportsbook SteamSource = "sportsbook"
	SteamSourceExchange   SteamSource = "exchange"
)

// SteamMove is a sharp implied-probability shift on one outcome within a
// short window, a signal that informed money is moving the line.
type SteamMove struct {
	Key    OutcomeKey
	Source SteamSource
	Sport  string
	Event  string
	Runner string

	OldPrice float64
	NewPrice float64

	// Shift is the implied-probability change, as a fraction of 1.
	Shift  float64
	Window time.Duration

	// MatchedVolume is the exchange volume traded during the move, when the
	// source venue exposes it.
	MatchedVolume float64

	StartTime  time.Time
	DetectedAt time.Time
}

// Firming reports whether the price shortened (probability rose).
func (m SteamMove) Firming() bool { return m.NewPrice < m.OldPrice }

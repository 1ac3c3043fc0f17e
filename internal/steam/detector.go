// Package steam detects sharp price shortenings from the live feed. Prices
// are sampled at observation time and compared against a short rolling
// baseline; a large implied-probability shift means informed money is moving
// the line.
package steam

import (
	"sync"
	"time"

	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/odds"
)

// Config tunes the detector. Zero fields fall back to defaults.
type Config struct {
	// Window is the lookback used for the baseline price.
	Window time.Duration

	// MinShift is the implied-probability change that qualifies as steam,
	// as a fraction of 1.
	MinShift float64

	// Cooldown suppresses repeat moves on the same outcome and source.
	Cooldown time.Duration

	// ReAlertDelta lets a move through during cooldown when it extended by
	// at least this much beyond the previously reported shift.
	ReAlertDelta float64

	// MinPrice and MaxPrice bound the odds worth watching.
	MinPrice float64
	MaxPrice float64
}

func (c Config) withDefaults() Config {
	if c.Window == 0 {
		c.Window = 15 * time.Minute
	}
	if c.MinShift == 0 {
		c.MinShift = 0.03
	}
	if c.Cooldown == 0 {
		c.Cooldown = 30 * time.Minute
	}
	if c.ReAlertDelta == 0 {
		c.ReAlertDelta = 0.02
	}
	if c.MinPrice == 0 {
		c.MinPrice = 1.10
	}
	if c.MaxPrice == 0 {
		c.MaxPrice = 10.0
	}
	return c
}

type observation struct {
	at     time.Time
	price  float64
	volume float64
}

type trackKey struct {
	key    domain.OutcomeKey
	source domain.SteamSource
}

type lastAlert struct {
	at    time.Time
	shift float64
}

// Detector keeps per-outcome price history in memory and reports qualifying
// moves. It is safe for concurrent use.
type Detector struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	history map[trackKey][]observation
	alerted map[trackKey]lastAlert
}

func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		history: make(map[trackKey][]observation),
		alerted: make(map[trackKey]lastAlert),
	}
}

// Observe records one price sample for the outcome and returns a SteamMove
// when the implied probability rose by at least MinShift within the window.
// The sportsbook source samples the back price; the exchange source samples
// the lay price and tracks matched volume across the move.
func (d *Detector) Observe(o domain.PricedOutcome, source domain.SteamSource) *domain.SteamMove {
	price, volume := o.BackPrice, 0.0
	if source == domain.SteamSourceExchange {
		price, volume = o.LayPrice, o.TotalMatched
	}
	if price < d.cfg.MinPrice || price > d.cfg.MaxPrice {
		return nil
	}

	now := d.now()
	tk := trackKey{key: o.Key, source: source}

	d.mu.Lock()
	defer d.mu.Unlock()

	hist := append(d.history[tk], observation{at: now, price: price, volume: volume})
	hist = trim(hist, now.Add(-d.cfg.Window))
	d.history[tk] = hist

	if len(hist) < 2 {
		return nil
	}

	oldest, latest := hist[0], hist[len(hist)-1]
	shift := odds.ImpliedProb(latest.price) - odds.ImpliedProb(oldest.price)
	if shift < d.cfg.MinShift {
		return nil
	}

	if last, ok := d.alerted[tk]; ok && now.Sub(last.at) < d.cfg.Cooldown {
		// Within cooldown, only a materially extended move goes out again.
		if shift < last.shift+d.cfg.ReAlertDelta {
			return nil
		}
	}
	// Dedup state advances whether or not the caller manages to deliver the
	// alert, so a notification outage cannot turn into spam.
	d.alerted[tk] = lastAlert{at: now, shift: shift}

	matched := 0.0
	if source == domain.SteamSourceExchange {
		matched = latest.volume - oldest.volume
		if matched < 0 {
			matched = 0
		}
	}

	return &domain.SteamMove{
		Key:           o.Key,
		Source:        source,
		Sport:         o.Sport,
		Event:         o.Event,
		Runner:        o.Runner,
		OldPrice:      oldest.price,
		NewPrice:      latest.price,
		Shift:         shift,
		Window:        latest.at.Sub(oldest.at),
		MatchedVolume: matched,
		StartTime:     o.StartTime,
		DetectedAt:    now,
	}
}

// Prune drops history and dedup state for outcomes no longer in the feed.
func (d *Detector) Prune(active map[domain.OutcomeKey]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for tk := range d.history {
		if !active[tk.key] {
			delete(d.history, tk)
		}
	}
	for tk := range d.alerted {
		if !active[tk.key] {
			delete(d.alerted, tk)
		}
	}
}

// trim drops observations before the cutoff but keeps the most recent
// pre-cutoff one as an anchor, so a sparse feed never loses its baseline.
func trim(hist []observation, cutoff time.Time) []observation {
	first := len(hist)
	for i, obs := range hist {
		if !obs.at.Before(cutoff) {
			first = i
			break
		}
	}
	if first == 0 {
		return hist
	}
	return hist[first-1:]
}

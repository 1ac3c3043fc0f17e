package domain

import "time"

// Opportunity is one contiguous episode during which an outcome's net margin
// sat inside the tracked band. It opens when the margin first enters the band
// and closes when the margin leaves it or the outcome disappears from the
// feed.
type Opportunity struct {
	ID     string
	Key    OutcomeKey
	Sport  string
	Event  string
	Runner string

	// Prices at open.
	BackPrice float64
	LayPrice  float64

	// OpenMargin is the net margin at open; PeakMargin is the highest margin
	// seen across the whole episode and never decreases.
	OpenMargin float64
	PeakMargin float64

	// PeakBackPrice and PeakLayPrice are the prices observed at the moment
	// the peak margin was recorded.
	PeakBackPrice float64
	PeakLayPrice  float64

	OpenedAt time.Time
	LastSeen time.Time
	ClosedAt *time.Time
}

// ObserveMargin folds a fresh in-band observation into the episode, raising
// the peak when exceeded.
func (o *Opportunity) ObserveMargin(margin, back, lay float64, at time.Time) {
	o.LastSeen = at
	if margin > o.PeakMargin {
		o.PeakMargin = margin
		o.PeakBackPrice = back
		o.PeakLayPrice = lay
	}
}

// Close marks the episode ended at the given instant.
func (o *Opportunity) Close(at time.Time) {
	t := at
	o.ClosedAt = &t
}

// Duration is the open-to-close span, or open-to-last-seen while still open.
func (o Opportunity) Duration() time.Duration {
	if o.ClosedAt != nil {
		return o.ClosedAt.Sub(o.OpenedAt)
	}
	return o.LastSeen.Sub(o.OpenedAt)
}

func (o Opportunity) Open() bool { return o.ClosedAt == nil }

package domain

import "time"

// SportCount is one sport's share of a day's opportunities.
type SportCount struct {
	Sport         string
	Count         int
	AvgPeakMargin float64
}

// DailySummary aggregates one UTC day of opportunity episodes for the daily
// report.
type DailySummary struct {
	Day   time.Time
	Total int

	AvgPeakMargin float64
	MaxPeakMargin float64
	MinPeakMargin float64

	AvgDuration time.Duration
	MaxDuration time.Duration

	BySport []SportCount

	// Top holds the day's best episodes by peak margin, capped by the
	// report's configured size.
	Top []Opportunity
}

// Empty reports whether the day had no episodes at all.
func (s DailySummary) Empty() bool { return s.Total == 0 }

// Package metrics exposes Prometheus instrumentation for the scanner and
// executor. All metrics live in a private registry served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects everything the system instruments. Helper methods keep
// label handling in one place.
type Metrics struct {
	registry *prometheus.Registry

	// Scanner.
	ScanCycles    *prometheus.CounterVec
	ScanDuration  prometheus.Histogram
	TrackedMarket prometheus.Gauge
	OpenEpisodes  prometheus.Gauge

	// Opportunities.
	OpportunitiesOpened *prometheus.CounterVec
	OpportunityMargin   prometheus.Histogram
	EpisodeDuration     prometheus.Histogram
	AlertsTotal         *prometheus.CounterVec

	// Executions.
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	MonthlyChurn      prometheus.Gauge

	// Feed plumbing.
	FeedUpdates *prometheus.CounterVec
	VenueErrors *prometheus.CounterVec
	Snapshots   prometheus.Counter
}

// New creates a Metrics collector with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ScanCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backlay_scan_cycles_total",
				Help: "Scan cycles by result",
			},
			[]string{"status"},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backlay_scan_duration_seconds",
				Help:    "Duration of one scan cycle",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		TrackedMarket: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backlay_tracked_outcomes",
				Help: "Outcomes currently priced on both venues",
			},
		),
		OpenEpisodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backlay_open_opportunities",
				Help: "Opportunity episodes currently open",
			},
		),

		OpportunitiesOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backlay_opportunities_opened_total",
				Help: "Opportunity episodes opened",
			},
			[]string{"sport"},
		),
		OpportunityMargin: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backlay_opportunity_margin",
				Help:    "Net margin at open, as a fraction",
				Buckets: []float64{0.001, 0.0025, 0.005, 0.0075, 0.01, 0.015, 0.02, 0.03, 0.05},
			},
		),
		EpisodeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backlay_opportunity_duration_seconds",
				Help:    "Lifetime of a closed opportunity episode",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
			},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backlay_alerts_total",
				Help: "Operator alerts sent by kind",
			},
			[]string{"kind"},
		),

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backlay_executions_total",
				Help: "Execution attempts by terminal status",
			},
			[]string{"status"},
		),
		ExecutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backlay_execution_duration_seconds",
				Help:    "Wall time of one execution attempt",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
			},
		),
		MonthlyChurn: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backlay_monthly_churn_eur",
				Help: "Back stake placed this calendar month",
			},
		),

		FeedUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backlay_feed_updates_total",
				Help: "Outcome rows refreshed per venue",
			},
			[]string{"venue"},
		),
		VenueErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backlay_venue_errors_total",
				Help: "Venue API failures by operation",
			},
			[]string{"venue", "op"},
		),
		Snapshots: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backlay_snapshots_total",
				Help: "Price snapshots persisted",
			},
		),
	}

	m.registry.MustRegister(
		m.ScanCycles,
		m.ScanDuration,
		m.TrackedMarket,
		m.OpenEpisodes,
		m.OpportunitiesOpened,
		m.OpportunityMargin,
		m.EpisodeDuration,
		m.AlertsTotal,
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.MonthlyChurn,
		m.FeedUpdates,
		m.VenueErrors,
		m.Snapshots,
	)
	return m
}

// Registry returns the registry for mounting on an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordScan records one scan cycle.
func (m *Metrics) RecordScan(status string, durationSec float64) {
	m.ScanCycles.WithLabelValues(status).Inc()
	m.ScanDuration.Observe(durationSec)
}

// RecordOpportunityOpened records a new episode.
func (m *Metrics) RecordOpportunityOpened(sport string, margin float64) {
	m.OpportunitiesOpened.WithLabelValues(sport).Inc()
	m.OpportunityMargin.Observe(margin)
}

// RecordOpportunityClosed records the lifetime of a finished episode.
func (m *Metrics) RecordOpportunityClosed(durationSec float64) {
	m.EpisodeDuration.Observe(durationSec)
}

// RecordAlert counts an operator alert.
func (m *Metrics) RecordAlert(kind string) {
	m.AlertsTotal.WithLabelValues(kind).Inc()
}

// RecordExecution records a finished execution attempt.
func (m *Metrics) RecordExecution(status string, durationSec float64) {
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDuration.Observe(durationSec)
}

// SetMonthlyChurn publishes the current month's churn total.
func (m *Metrics) SetMonthlyChurn(v float64) {
	m.MonthlyChurn.Set(v)
}

// SetTracked publishes the current feed coverage.
func (m *Metrics) SetTracked(outcomes, openEpisodes int) {
	m.TrackedMarket.Set(float64(outcomes))
	m.OpenEpisodes.Set(float64(openEpisodes))
}

// RecordFeedUpdate counts refreshed outcome rows for a venue.
func (m *Metrics) RecordFeedUpdate(venue string, n int) {
	m.FeedUpdates.WithLabelValues(venue).Add(float64(n))
}

// RecordVenueError counts a failed venue call.
func (m *Metrics) RecordVenueError(venue, op string) {
	m.VenueErrors.WithLabelValues(venue, op).Inc()
}

// RecordSnapshots counts persisted price snapshots.
func (m *Metrics) RecordSnapshots(n int) {
	m.Snapshots.Add(float64(n))
}

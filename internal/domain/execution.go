package domain

import "time"

// ExecStatus is the terminal outcome of one execution attempt. Every attempt
// that gets past the busy-gate records exactly one of these.
type ExecStatus string

const (
	// ExecStatusDryRun means the kill switch was off: the attempt logged what
	// it would have done and stopped before any venue call.
	ExecStatusDryRun ExecStatus = "dry_run"

	// ExecStatusMarketGone means the lay market could not be revalidated: it
	// is no longer listed or the state query failed. No money is at risk.
	ExecStatusMarketGone ExecStatus = "market_gone"

	// ExecStatusInPlay means the event went in-play before placement.
	ExecStatusInPlay ExecStatus = "in_play"

	// ExecStatusSuspended means the lay market is not open for betting.
	ExecStatusSuspended ExecStatus = "market_suspended"

	// ExecStatusRunnerGone means the selection is no longer active.
	ExecStatusRunnerGone ExecStatus = "runner_gone"

	// ExecStatusNoLiquidity means nothing is available to lay.
	ExecStatusNoLiquidity ExecStatus = "no_lay_liquidity"

	// ExecStatusQuoteFailed means the back venue's placement-info query
	// failed or returned an implausible price. No money is at risk.
	ExecStatusQuoteFailed ExecStatus = "back_quote_failed"

	// ExecStatusMarginGone means both venues revalidated fine but the fresh
	// margin fell below the execution floor.
	ExecStatusMarginGone ExecStatus = "margin_gone"

	// ExecStatusBackRejected means the back venue refused the placement
	// request outright. No money is at risk.
	ExecStatusBackRejected ExecStatus = "back_rejected"

	// ExecStatusBackNoRef means the back venue accepted the placement but
	// returned no reference. The bet may exist; exposure is unknown.
	ExecStatusBackNoRef ExecStatus = "back_no_reference"

	// ExecStatusBackError means the placement call itself failed in a way
	// that leaves the bet's existence unknown.
	ExecStatusBackError ExecStatus = "back_error"

	// ExecStatusConfirmTimeout means the back bet never reached a terminal
	// confirmation state within the polling window. It may still fill.
	ExecStatusConfirmTimeout ExecStatus = "confirm_timeout"

	// ExecStatusBackVoided means the confirmation poll reported the back bet
	// rejected, cancelled or voided. No exposure remains.
	ExecStatusBackVoided ExecStatus = "back_voided"

	// ExecStatusLayFailed means the back bet is confirmed but the hedging lay
	// order failed, leaving a naked back position.
	ExecStatusLayFailed ExecStatus = "lay_failed"

	// ExecStatusExecuted means both legs are placed.
	ExecStatusExecuted ExecStatus = "executed"
)

// Ambiguous reports whether the outcome leaves possible unhedged exposure
// that a human must resolve.
func (s ExecStatus) Ambiguous() bool {
	switch s {
	case ExecStatusBackNoRef, ExecStatusBackError, ExecStatusConfirmTimeout, ExecStatusLayFailed:
		return true
	}
	return false
}

// Terminal reports whether the status represents a finished attempt. All
// current statuses are terminal; the method exists so callers do not need to
// know that.
func (s ExecStatus) Terminal() bool { return s != "" }

// ExecutionContext is the frozen snapshot handed from detection to execution.
// It carries everything the saga needs to revalidate and place both legs
// without consulting the feed again. Observed prices are display-only; the
// saga always re-fetches live prices before committing money.
type ExecutionContext struct {
	ID     string
	Key    OutcomeKey
	Sport  string
	Event  string
	Runner string

	// Lay venue.
	MarketID    string
	SelectionID int64

	// Back venue placement identifiers.
	Back BackRef

	// Prices observed at detection time.
	ObservedBack   float64
	ObservedLay    float64
	ObservedMargin float64

	CreatedAt time.Time
}

// ExecutionRecord is the persisted outcome of one execution attempt. It is
// self-contained: prices, stakes, margin and status reconstruct the full
// decision without consulting any other table.
type ExecutionRecord struct {
	ID     string
	Key    OutcomeKey
	Sport  string
	Event  string
	Runner string

	Status ExecStatus
	Reason string

	BackRef  string
	LayBetID string

	BackPrice float64
	BackStake float64
	LayPrice  float64
	LayStake  float64

	// Margin is the net margin the attempt was sized against, as a fraction.
	Margin         float64
	ExpectedProfit float64

	// MonthKey groups attempts for churn accounting, formatted "2006-01".
	MonthKey  string
	CreatedAt time.Time
}

// MonthKeyFor formats the churn month bucket for an instant, in UTC.
func MonthKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01")
}

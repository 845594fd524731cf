// Package indicator computes the intraday technical indicators used by the
// signal pipeline: session VWAP, MACD with its signal line, and a simplified
// Supertrend.
//
// All indicators are incremental accumulators fed one bar at a time, so a
// session can be processed in a single causal pass. Values for bar i depend
// only on bars <= i.
package indicator

import (
	"errors"

	"nifty-signal/internal/model"
)

// Fixed strategy parameters.
const (
	FastSpan   = 12
	SlowSpan   = 26
	SignalSpan = 9

	SupertrendPeriod     = 10
	SupertrendMultiplier = 3.0
)

// ErrInsufficientData is returned when there are no bars to enrich.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// Indicator is the interface shared by the per-bar indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "VWAP", "MACD_12_26_9").
	Name() string

	// Update feeds the next bar of the session.
	Update(bar model.Bar)

	// Ready returns true once the indicator produces a defined value.
	Ready() bool

	// Reset clears all accumulated state for a new session.
	Reset()
}

// Package decision models the per-instrument trading decisions supplied by
// the external advisory process, and the boundary that validates them
// before they reach the executor. Decisions are ephemeral: a batch lives
// for exactly one executor cycle.
package decision

import "context"

// Signal is the closed set of decision actions.
type Signal string

const (
	SignalBuy   Signal = "BUY"
	SignalSell  Signal = "SELL"
	SignalHold  Signal = "HOLD"
	SignalClose Signal = "CLOSE"
)

// Known reports whether the signal is one of the four supported actions.
// Unknown signals are rejected instrument-locally, never batch-fatally.
func (s Signal) Known() bool {
	switch s {
	case SignalBuy, SignalSell, SignalHold, SignalClose:
		return true
	}
	return false
}

// Opens reports whether the signal would open new exposure.
func (s Signal) Opens() bool { return s == SignalBuy || s == SignalSell }

// Decision is one instrument's decision for one cycle.
// Quantity is required for BUY/SELL and ignored otherwise. TakeProfit and
// StopLoss are optional trigger prices (0 = disabled).
type Decision struct {
	Symbol     string  `json:"symbol"`
	Signal     Signal  `json:"signal"`
	Confidence float64 `json:"confidence"`
	Quantity   float64 `json:"quantity,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
}

// Source supplies at most one decision batch per executor cycle, keyed by
// instrument symbol. An empty map means no fresh batch is available; the
// cycle simply has nothing to do.
type Source interface {
	Fetch(ctx context.Context) (map[string]Decision, error)
}

// Package monitor reconciles the local position store against the
// exchange and fires take-profit/stop-loss closes. It runs on its own
// cadence, faster than the executor, and shares the store with it.
package monitor

import (
	"context"
	"time"

	"marlin/internal/gateway/exchange"
	"marlin/internal/ledger"
	"marlin/internal/logger"
	"marlin/internal/pkg/pricemath"
	"marlin/internal/position"
)

// Ledger is the slice of the ledger the monitor writes through.
type Ledger interface {
	Append(rec ledger.TradeRecord) error
}

type Monitor struct {
	gateway exchange.Gateway
	store   *position.Store
	ledger  Ledger
}

func New(gw exchange.Gateway, store *position.Store, led Ledger) *Monitor {
	return &Monitor{gateway: gw, store: store, ledger: led}
}

// RunOnce performs one reconciliation-and-trigger pass. A failed
// reconciliation skips trigger evaluation for the pass; per-instrument
// trigger errors are logged and isolated. Only a ledger write failure
// propagates.
func (m *Monitor) RunOnce(ctx context.Context) error {
	remote, err := m.gateway.GetPositions(ctx)
	if err != nil {
		logger.Errorf("position reconciliation failed, pass skipped: %v", err)
		return nil
	}
	m.store.Reconcile(remote)

	for _, pos := range m.store.List() {
		if pos.TakeProfit <= 0 && pos.StopLoss <= 0 {
			continue
		}
		if err := m.evaluateTriggers(ctx, pos); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) evaluateTriggers(ctx context.Context, pos position.Position) error {
	price, err := m.gateway.GetCurrentPrice(ctx, pos.Symbol)
	if err != nil || price <= 0 {
		logger.Warnf("no current price for %s, triggers not evaluated: %v", pos.Symbol, err)
		return nil
	}

	reason, fired := matchTrigger(pos, price)
	if !fired {
		return nil
	}
	logger.Infof("%s trigger fired on %s %s at %.4f (tp=%v sl=%v)",
		reason, pos.Side, pos.Symbol, price, pos.TakeProfit, pos.StopLoss)

	rec := ledger.TradeRecord{
		Timestamp: time.Now(),
		Symbol:    pos.Symbol,
		Action:    ledger.ActionClose,
		Side:      string(pos.Side),
		Quantity:  pos.Size,
		Price:     price,
		Reason:    reason,
	}
	orderID, err := m.gateway.ClosePosition(ctx, pos.Symbol)
	if err != nil {
		logger.Errorf("trigger close for %s failed: %v", pos.Symbol, err)
		rec.Error = err.Error()
		// The trigger stays armed; the position is still open and the
		// next pass retries against a fresh price.
		return m.ledger.Append(rec)
	}
	rec.OrderID = orderID
	rec.Success = true
	rec.PnL = pos.UnrealizedPnL
	// Fire-once: the record goes away with the position, so the trigger
	// can never re-arm for this position instance.
	m.store.Remove(pos.Symbol)
	return m.ledger.Append(rec)
}

// matchTrigger evaluates the direction-aware thresholds. Take-profit is
// checked before stop-loss when both could match on the same poll.
func matchTrigger(pos position.Position, price float64) (string, bool) {
	switch pos.Side {
	case exchange.SideLong:
		if pos.TakeProfit > 0 && pricemath.GTE(price, pos.TakeProfit) {
			return ledger.ReasonTakeProfit, true
		}
		if pos.StopLoss > 0 && pricemath.LTE(price, pos.StopLoss) {
			return ledger.ReasonStopLoss, true
		}
	case exchange.SideShort:
		if pos.TakeProfit > 0 && pricemath.LTE(price, pos.TakeProfit) {
			return ledger.ReasonTakeProfit, true
		}
		if pos.StopLoss > 0 && pricemath.GTE(price, pos.StopLoss) {
			return ledger.ReasonStopLoss, true
		}
	}
	return "", false
}

// Package executor turns one decision batch into exchange orders. Each
// cycle runs in two phases: risk-reducing closes first, then opens and
// informational records per instrument, with admission control on every
// open. Every attempt, successful or not, lands in the ledger before the
// cycle returns.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"marlin/internal/decision"
	"marlin/internal/gateway/exchange"
	"marlin/internal/ledger"
	"marlin/internal/logger"
	"marlin/internal/pkg/pricemath"
	"marlin/internal/position"
	"marlin/internal/risk"
)

// Config are the executor's cycle parameters.
type Config struct {
	// MinFreeMargin aborts the whole cycle when the account's free margin
	// is below it. The only whole-cycle abort besides a snapshot failure.
	MinFreeMargin float64
	// OpenConfidence gates BUY/SELL; MaintenanceConfidence gates HOLD and
	// CLOSE. Opening new exposure carries the stricter bar.
	OpenConfidence        float64
	MaintenanceConfidence float64
	// MaxMarginUtilization caps projected total margin as a fraction of
	// total equity during admission control.
	MaxMarginUtilization float64
	Leverage             int
}

// ErrLedger marks a ledger write failure. A snapshot failure aborts only
// the current cycle and is retried on the next tick; a ledger failure must
// stop the engine, since trading without an audit trail is not safe.
var ErrLedger = errors.New("ledger failure")

// Ledger is the slice of the ledger the executor writes through.
type Ledger interface {
	NextInvocation() (int64, error)
	Append(rec ledger.TradeRecord) error
}

type Executor struct {
	cfg     Config
	gateway exchange.Gateway
	store   *position.Store
	risk    *risk.Manager
	ledger  Ledger
}

func New(cfg Config, gw exchange.Gateway, store *position.Store, rm *risk.Manager, led Ledger) *Executor {
	return &Executor{cfg: cfg, gateway: gw, store: store, risk: rm, ledger: led}
}

// ExecuteCycle consumes one decision batch. It aborts with no orders when
// the account snapshot is unavailable or free margin is under the floor;
// every other failure is instrument-local. A ledger write failure is fatal
// and propagates.
func (e *Executor) ExecuteCycle(ctx context.Context, decisions map[string]decision.Decision) ([]ledger.TradeRecord, error) {
	if len(decisions) == 0 {
		return nil, nil
	}
	invocation, err := e.ledger.NextInvocation()
	if err != nil {
		return nil, fmt.Errorf("%w: advancing invocation counter: %v", ErrLedger, err)
	}

	account, err := e.gateway.GetAccountSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("account snapshot unavailable, cycle aborted: %w", err)
	}
	if pricemath.LT(account.Free, e.cfg.MinFreeMargin) {
		logger.Warnf("free margin %.2f below floor %.2f, cycle aborted", account.Free, e.cfg.MinFreeMargin)
		return nil, nil
	}
	e.risk.RecordEquity(account.Total)

	remote, err := e.gateway.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("position snapshot unavailable, cycle aborted: %w", err)
	}
	e.store.Reconcile(remote)

	cycle := &cycleState{
		invocation:    invocation,
		account:       account,
		positions:     remote,
		runningMargin: totalMargin(remote),
		exposure:      totalNotional(remote),
	}
	logger.Infof("cycle %d: %d decisions, equity=%.2f free=%.2f margin_in_use=%.2f",
		invocation, len(decisions), account.Total, account.Free, cycle.runningMargin)

	var records []ledger.TradeRecord
	appendRecord := func(rec ledger.TradeRecord) error {
		rec.Invocation = invocation
		if err := e.ledger.Append(rec); err != nil {
			return fmt.Errorf("%w: appending trade record: %v", ErrLedger, err)
		}
		records = append(records, rec)
		return nil
	}

	for _, d := range orderedDecisions(decisions) {
		if d.Signal != decision.SignalClose {
			continue
		}
		rec, acted := e.executeClose(ctx, d, cycle)
		if !acted {
			continue
		}
		if err := appendRecord(rec); err != nil {
			return records, err
		}
	}

	for _, d := range orderedDecisions(decisions) {
		var rec ledger.TradeRecord
		var acted bool
		switch d.Signal {
		case decision.SignalClose:
			continue
		case decision.SignalHold:
			rec, acted = e.recordHold(d, cycle)
		case decision.SignalBuy, decision.SignalSell:
			rec, acted = e.executeOpen(ctx, d, cycle)
		default:
			logger.Warnf("unknown signal %q for %s, skipped", d.Signal, d.Symbol)
			continue
		}
		if !acted {
			continue
		}
		if err := appendRecord(rec); err != nil {
			return records, err
		}
	}
	return records, nil
}

// cycleState carries the running exposure accounting across both phases.
// Closes decrement it, opens increment it, so later instruments see the
// margin already claimed by earlier ones.
type cycleState struct {
	invocation    int64
	account       exchange.AccountSnapshot
	positions     map[string]exchange.PositionFields
	runningMargin float64
	exposure      float64
}

func (e *Executor) executeClose(ctx context.Context, d decision.Decision, cycle *cycleState) (ledger.TradeRecord, bool) {
	if pricemath.LT(d.Confidence, e.cfg.MaintenanceConfidence) {
		logger.Infof("%s CLOSE below maintenance confidence (%.2f), skipped", d.Symbol, d.Confidence)
		return ledger.TradeRecord{}, false
	}
	pos, ok := cycle.positions[d.Symbol]
	if !ok {
		logger.Infof("%s CLOSE with no open position, skipped", d.Symbol)
		return ledger.TradeRecord{}, false
	}
	return e.closePosition(ctx, d, pos, cycle, ledger.ReasonSignalClose), true
}

// closePosition submits the close and rolls the running exposure back on
// success. On a failed submission the position stays in the store with its
// triggers untouched, so the monitor can still stop it out.
func (e *Executor) closePosition(ctx context.Context, d decision.Decision, pos exchange.PositionFields, cycle *cycleState, reason string) ledger.TradeRecord {
	rec := ledger.TradeRecord{
		Timestamp: time.Now(),
		Symbol:    d.Symbol,
		Action:    ledger.ActionClose,
		Side:      string(pos.Side),
		Quantity:  pos.Size,
		Price:     pos.MarkPrice,
		Reason:    reason,
		Decision:  marshalDecision(d),
	}
	orderID, err := e.gateway.ClosePosition(ctx, d.Symbol)
	if err != nil {
		logger.Errorf("closing %s failed: %v", d.Symbol, err)
		rec.Error = err.Error()
		return rec
	}
	rec.OrderID = orderID
	rec.Success = true
	rec.PnL = pos.UnrealizedPnL
	e.risk.RecordReturn(tradeReturn(pos.UnrealizedPnL, cycle.account.Total))
	cycle.runningMargin -= pos.MarginUsed
	if cycle.runningMargin < 0 {
		cycle.runningMargin = 0
	}
	cycle.exposure -= pos.Size * pos.MarkPrice
	if cycle.exposure < 0 {
		cycle.exposure = 0
	}
	delete(cycle.positions, d.Symbol)
	e.store.Remove(d.Symbol)
	logger.Infof("closed %s %s qty=%v pnl=%.2f reason=%s", pos.Side, d.Symbol, pos.Size, pos.UnrealizedPnL, reason)
	return rec
}

func (e *Executor) recordHold(d decision.Decision, cycle *cycleState) (ledger.TradeRecord, bool) {
	if pricemath.LT(d.Confidence, e.cfg.MaintenanceConfidence) {
		return ledger.TradeRecord{}, false
	}
	pos, ok := cycle.positions[d.Symbol]
	if !ok {
		return ledger.TradeRecord{}, false
	}
	logger.Infof("%s HOLD, keeping %s position (pnl=%.2f)", d.Symbol, pos.Side, pos.UnrealizedPnL)
	return ledger.TradeRecord{
		Timestamp: time.Now(),
		Symbol:    d.Symbol,
		Action:    ledger.ActionHold,
		Side:      string(pos.Side),
		Quantity:  pos.Size,
		Price:     pos.MarkPrice,
		Success:   true,
		Decision:  marshalDecision(d),
	}, true
}

func (e *Executor) executeOpen(ctx context.Context, d decision.Decision, cycle *cycleState) (ledger.TradeRecord, bool) {
	if d.Quantity <= 0 {
		logger.Warnf("%s %s without a positive quantity, skipped", d.Symbol, d.Signal)
		return ledger.TradeRecord{}, false
	}
	if pricemath.LT(d.Confidence, e.cfg.OpenConfidence) {
		logger.Infof("%s %s below opening confidence (%.2f < %.2f), skipped",
			d.Symbol, d.Signal, d.Confidence, e.cfg.OpenConfidence)
		return ledger.TradeRecord{}, false
	}

	direction := exchange.DirectionBuy
	if d.Signal == decision.SignalSell {
		direction = exchange.DirectionSell
	}

	if pos, ok := cycle.positions[d.Symbol]; ok {
		if pos.Side.Matches(direction) {
			logger.Infof("%s already holds a %s position, duplicate %s skipped", d.Symbol, pos.Side, d.Signal)
			return ledger.TradeRecord{}, false
		}
		// Direction flip: close now, reconsider opening next cycle. Never
		// close and reopen against the exchange in the same tick.
		logger.Infof("%s flip requested (%s -> %s), closing only", d.Symbol, pos.Side, d.Signal)
		return e.closePosition(ctx, d, pos, cycle, ledger.ReasonDirectionFlip), true
	}

	price, err := e.gateway.GetCurrentPrice(ctx, d.Symbol)
	if err != nil || price <= 0 {
		logger.Errorf("no current price for %s, skipped: %v", d.Symbol, err)
		return ledger.TradeRecord{}, false
	}

	if err := e.risk.ValidateTrade(risk.TradeRequest{
		Symbol:   d.Symbol,
		Quantity: d.Quantity,
		Price:    price,
	}, cycle.account.Total, len(cycle.positions), cycle.exposure); err != nil {
		logger.Warnf("%s rejected by risk validation: %v", d.Symbol, err)
		return ledger.TradeRecord{}, false
	}

	margin := pricemath.Margin(d.Quantity, price, e.cfg.Leverage)
	projected := cycle.runningMargin + margin
	if pricemath.GT(projected, cycle.account.Total*e.cfg.MaxMarginUtilization) {
		logger.Warnf("%s skipped by admission control: projected margin %.2f exceeds %.0f%% of equity %.2f",
			d.Symbol, projected, e.cfg.MaxMarginUtilization*100, cycle.account.Total)
		return ledger.TradeRecord{}, false
	}

	action := ledger.ActionOpenLong
	side := exchange.SideLong
	if direction == exchange.DirectionSell {
		action = ledger.ActionOpenShort
		side = exchange.SideShort
	}
	rec := ledger.TradeRecord{
		Timestamp: time.Now(),
		Symbol:    d.Symbol,
		Action:    action,
		Side:      string(side),
		Quantity:  d.Quantity,
		Price:     price,
		Decision:  marshalDecision(d),
	}
	orderID, err := e.gateway.PlaceOrder(ctx, d.Symbol, direction, d.Quantity)
	if err != nil {
		logger.Errorf("opening %s %s failed: %v", side, d.Symbol, err)
		rec.Error = err.Error()
		return rec, true
	}
	rec.OrderID = orderID
	rec.Success = true
	cycle.runningMargin = projected
	cycle.exposure += d.Quantity * price
	cycle.positions[d.Symbol] = exchange.PositionFields{
		Symbol:     d.Symbol,
		Side:       side,
		Size:       d.Quantity,
		EntryPrice: price,
		MarkPrice:  price,
		Leverage:   e.cfg.Leverage,
		MarginUsed: margin,
		UpdatedAt:  time.Now(),
	}
	if d.TakeProfit > 0 || d.StopLoss > 0 {
		e.store.SetTriggers(d.Symbol, side, d.TakeProfit, d.StopLoss)
	}
	logger.Infof("opened %s %s qty=%v @ %.2f margin=%.2f tp=%v sl=%v",
		side, d.Symbol, d.Quantity, price, margin, d.TakeProfit, d.StopLoss)
	return rec, true
}

// orderedDecisions sorts a batch by descending confidence, symbol
// ascending on ties. Instruments earlier in the order have first claim on
// remaining margin headroom.
func orderedDecisions(batch map[string]decision.Decision) []decision.Decision {
	out := make([]decision.Decision, 0, len(batch))
	for _, d := range batch {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func totalMargin(positions map[string]exchange.PositionFields) float64 {
	var total float64
	for _, p := range positions {
		total += p.MarginUsed
	}
	return total
}

func totalNotional(positions map[string]exchange.PositionFields) float64 {
	var total float64
	for _, p := range positions {
		n := p.Size * p.MarkPrice
		if n < 0 {
			n = -n
		}
		total += n
	}
	return total
}

func tradeReturn(pnl, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	return pnl / equity
}

func marshalDecision(d decision.Decision) []byte {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	return raw
}

// Package risk gates every order before it reaches the exchange and keeps
// the running drawdown and return statistics for the session.
package risk

import (
	"fmt"
	"math"
	"sync"

	"marlin/internal/pkg/pricemath"
)

// Limits are the static risk parameters for a session.
type Limits struct {
	// MaxRiskPerTrade is the fraction of equity a single trade may lose if
	// its stop is hit.
	MaxRiskPerTrade float64
	// MaxMarginUtilization caps total locked margin as a fraction of total
	// equity.
	MaxMarginUtilization float64
	// MaxPositions caps the number of concurrently open instruments.
	MaxPositions int
	// Leverage applies to every order; the executor prepares it on the
	// exchange at startup.
	Leverage int
}

// Manager applies Limits to trade requests and tracks equity statistics.
// Validation is pure with respect to its inputs; only the statistics carry
// state, guarded by mu.
type Manager struct {
	limits Limits

	mu              sync.Mutex
	returns         []float64
	peakEquity      float64
	currentDrawdown float64
	maxDrawdown     float64
}

func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

func (m *Manager) Limits() Limits { return m.limits }

// PositionSize derives an order quantity from the distance to the stop:
// the leveraged quantity that loses MaxRiskPerTrade of equity if the stop
// fills, capped at the quantity whose notional is half the equity. Returns
// 0 when the stop distance is zero or any input is non-positive.
func (m *Manager) PositionSize(equity, entry, stop float64) float64 {
	if equity <= 0 || entry <= 0 || stop <= 0 {
		return 0
	}
	dist := math.Abs(entry - stop)
	if pricemath.Cmp(dist, 0) == 0 {
		return 0
	}
	qty := equity * m.limits.MaxRiskPerTrade / dist * float64(m.limits.Leverage)
	capQty := equity * 0.5 / entry
	if qty > capQty {
		qty = capQty
	}
	return qty
}

// TradeRequest is one candidate order presented for validation. Only
// opening orders are validated; closes always reduce risk and bypass
// validation entirely, which is also what exempts a direction-flip close
// from the position cap.
type TradeRequest struct {
	Symbol   string
	Quantity float64
	Price    float64
}

// ValidateTrade rejects a request that would breach the per-trade margin
// bound, the position count cap or the exposure ceiling. openCount and
// totalExposure describe the book as it stands before this trade.
func (m *Manager) ValidateTrade(req TradeRequest, equity float64, openCount int, totalExposure float64) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", req.Quantity)
	}
	if req.Price <= 0 {
		return fmt.Errorf("no valid price for %s", req.Symbol)
	}
	if equity <= 0 {
		return fmt.Errorf("account equity is not positive")
	}
	if openCount >= m.limits.MaxPositions {
		return fmt.Errorf("position cap reached (%d open, max %d)", openCount, m.limits.MaxPositions)
	}
	margin := pricemath.Margin(req.Quantity, req.Price, m.limits.Leverage)
	if margin > equity*2*m.limits.MaxRiskPerTrade {
		return fmt.Errorf("margin %.2f for %s exceeds per-trade bound %.2f",
			margin, req.Symbol, equity*2*m.limits.MaxRiskPerTrade)
	}
	notional := req.Quantity * req.Price
	if totalExposure+notional > equity*2 {
		return fmt.Errorf("notional %.2f for %s would push exposure past 2x equity", notional, req.Symbol)
	}
	return nil
}

// RecordEquity feeds one equity observation into the drawdown tracker.
// Drawdown is measured against the session's high-water mark.
func (m *Manager) RecordEquity(equity float64) {
	if equity <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
	if m.peakEquity > 0 {
		m.currentDrawdown = (m.peakEquity - equity) / m.peakEquity
		if m.currentDrawdown > m.maxDrawdown {
			m.maxDrawdown = m.currentDrawdown
		}
	}
}

// RecordReturn appends one realized trade return (PnL over equity at entry)
// to the rolling history used by Sharpe.
func (m *Manager) RecordReturn(ret float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returns = append(m.returns, ret)
	const maxHistory = 512
	if len(m.returns) > maxHistory {
		m.returns = m.returns[len(m.returns)-maxHistory:]
	}
}

// Drawdown returns the current and maximum drawdown as fractions of the
// equity high-water mark.
func (m *Manager) Drawdown() (current, max float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentDrawdown, m.maxDrawdown
}

// Sharpe computes a simplified per-trade Sharpe ratio over the recorded
// return history: mean over standard deviation, no annualization, zero
// risk-free rate. Returns 0 with fewer than two samples or zero variance.
func (m *Manager) Sharpe() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.returns)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, r := range m.returns {
		sum += r
	}
	mean := sum / float64(n)
	var variance float64
	for _, r := range m.returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(n - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

// Package position holds the in-memory view of open positions shared by the
// executor and the monitor. The exchange owns size, entry and mark price;
// this store additionally carries the take-profit and stop-loss triggers,
// which exist only locally and must survive reconciliation.
package position

import (
	"sort"
	"sync"
	"time"

	"marlin/internal/gateway/exchange"
)

// Position is one instrument's locally tracked state. TakeProfit and
// StopLoss of 0 mean the trigger is disabled.
type Position struct {
	Symbol        string
	Side          exchange.Side
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	Leverage      int
	Margin        float64
	UnrealizedPnL float64
	TakeProfit    float64
	StopLoss      float64
	UpdatedAt     time.Time
}

// Store is a mutex-guarded map of positions keyed by symbol. All methods
// are safe for concurrent use by the executor and monitor loops.
type Store struct {
	mu        sync.RWMutex
	positions map[string]Position
}

func NewStore() *Store {
	return &Store{positions: make(map[string]Position)}
}

// Reconcile replaces the exchange-owned fields with the remote snapshot.
// Local entries absent remotely are dropped, remote entries absent locally
// are created with triggers disabled, and entries present on both sides are
// updated with their triggers preserved. After return the store's key set
// equals the snapshot's.
func (s *Store) Reconcile(remote map[string]exchange.PositionFields) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for symbol := range s.positions {
		if _, ok := remote[symbol]; !ok {
			delete(s.positions, symbol)
		}
	}
	for symbol, f := range remote {
		p, exists := s.positions[symbol]
		if !exists {
			p = Position{Symbol: symbol}
		}
		p.Side = f.Side
		p.Size = f.Size
		p.EntryPrice = f.EntryPrice
		p.MarkPrice = f.MarkPrice
		p.Leverage = f.Leverage
		p.Margin = f.MarginUsed
		p.UnrealizedPnL = f.UnrealizedPnL
		p.UpdatedAt = now
		s.positions[symbol] = p
	}
}

// SetTriggers records the trigger prices for a symbol, creating a stub
// entry if the position has not been reconciled yet. The next Reconcile
// fills in the exchange-owned fields.
func (s *Store) SetTriggers(symbol string, side exchange.Side, takeProfit, stopLoss float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	if !ok {
		p = Position{Symbol: symbol, Side: side, UpdatedAt: time.Now()}
	}
	p.TakeProfit = takeProfit
	p.StopLoss = stopLoss
	s.positions[symbol] = p
}

func (s *Store) Get(symbol string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[symbol]
	return p, ok
}

// List returns a snapshot of all positions ordered by symbol.
func (s *Store) List() []Position {
	s.mu.RLock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *Store) Remove(symbol string) {
	s.mu.Lock()
	delete(s.positions, symbol)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// TotalNotional sums |size * mark price| across all positions.
func (s *Store) TotalNotional() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, p := range s.positions {
		n := p.Size * p.MarkPrice
		if n < 0 {
			n = -n
		}
		total += n
	}
	return total
}

// TotalMargin sums the margin currently locked across all positions.
func (s *Store) TotalMargin() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, p := range s.positions {
		total += p.Margin
	}
	return total
}

package exchange

import "time"

// Direction is the side of an order.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Side is the side of an open position. A position is exclusively long or
// short; one-way position mode is assumed everywhere.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the direction that reduces a position on this side.
func (s Side) Opposite() Direction {
	if s == SideLong {
		return DirectionSell
	}
	return DirectionBuy
}

// Matches reports whether an order direction opens (or adds to) this side.
func (s Side) Matches(d Direction) bool {
	return (s == SideLong && d == DirectionBuy) || (s == SideShort && d == DirectionSell)
}

// AccountSnapshot is the margin balance at one instant, in the quote
// currency (USDT).
type AccountSnapshot struct {
	Total     float64
	Free      float64
	Used      float64
	UpdatedAt time.Time
}

// PositionFields is the exchange-authoritative view of one open position.
// Take-profit/stop-loss are deliberately absent: they are local-only
// metadata the exchange never learns about.
type PositionFields struct {
	Symbol        string
	Side          Side
	Size          float64 // contracts, always > 0
	EntryPrice    float64
	MarkPrice     float64
	Leverage      int
	MarginUsed    float64
	UnrealizedPnL float64
	UpdatedAt     time.Time
}

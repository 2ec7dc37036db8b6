// Package exchange defines the gateway contract between the execution core
// and a derivatives exchange. The exchange is treated as ground truth for
// balances and positions; both loops read it directly with no caching layer.
package exchange

import "context"

type Gateway interface {
	// GetAccountSnapshot returns the current margin balance. Called fresh
	// at the start of every executor cycle; never cached across cycles.
	GetAccountSnapshot(ctx context.Context) (AccountSnapshot, error)

	// GetPositions returns every open position keyed by instrument symbol.
	GetPositions(ctx context.Context) (map[string]PositionFields, error)

	// GetCurrentPrice returns the latest mark/trade price for one symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// PlaceOrder submits an immediate (market) order and returns the
	// exchange order ID.
	PlaceOrder(ctx context.Context, symbol string, direction Direction, quantity float64) (string, error)

	// ClosePosition fully closes the open position on the symbol and
	// returns the close order ID.
	ClosePosition(ctx context.Context, symbol string) (string, error)
}

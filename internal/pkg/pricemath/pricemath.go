// Package pricemath provides exact comparisons for price and margin values.
// Trigger thresholds must fire when price lands exactly on the configured
// level, which naive float64 comparison can miss after arithmetic; all
// threshold checks go through shopspring/decimal instead.
package pricemath

import (
	"math"

	"github.com/shopspring/decimal"
)

func fromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

// Cmp returns -1, 0 or +1 comparing a against b.
func Cmp(a, b float64) int {
	return fromFloat(a).Cmp(fromFloat(b))
}

func GTE(a, b float64) bool { return Cmp(a, b) >= 0 }

func LTE(a, b float64) bool { return Cmp(a, b) <= 0 }

func GT(a, b float64) bool { return Cmp(a, b) > 0 }

func LT(a, b float64) bool { return Cmp(a, b) < 0 }

// Margin computes notional/leverage for a position of the given size at the
// given price. Returns 0 when leverage is not positive.
func Margin(quantity, price float64, leverage int) float64 {
	if leverage <= 0 {
		return 0
	}
	qty := fromFloat(math.Abs(quantity))
	notional := qty.Mul(fromFloat(price))
	out, _ := notional.Div(decimal.NewFromInt(int64(leverage))).Float64()
	return out
}

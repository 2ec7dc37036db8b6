package pricemath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCmpExactThreshold(t *testing.T) {
	// 0.1+0.2 != 0.3 under plain float64 comparison.
	assert.Equal(t, 0, Cmp(0.1+0.2, 0.3))
	assert.Equal(t, -1, Cmp(109.99, 110))
	assert.Equal(t, 1, Cmp(110.01, 110))
}

func TestComparisonHelpers(t *testing.T) {
	assert.True(t, GTE(110, 110))
	assert.True(t, GTE(111, 110))
	assert.False(t, GTE(109, 110))

	assert.True(t, LTE(110, 110))
	assert.True(t, LTE(109, 110))
	assert.False(t, LTE(111, 110))

	assert.True(t, GT(111, 110))
	assert.False(t, GT(110, 110))
	assert.True(t, LT(109, 110))
	assert.False(t, LT(110, 110))
}

func TestMargin(t *testing.T) {
	assert.InDelta(t, 60.0, Margin(0.01, 60000, 10), 1e-9)
	assert.InDelta(t, 60.0, Margin(-0.01, 60000, 10), 1e-9)
	assert.Zero(t, Margin(0.01, 60000, 0))
	assert.Zero(t, Margin(0.01, 60000, -1))
}

func TestNonFiniteInputsTreatedAsZero(t *testing.T) {
	assert.Equal(t, 0, Cmp(math.NaN(), 0))
	assert.Equal(t, 0, Cmp(math.Inf(1), 0))
}

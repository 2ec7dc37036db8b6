package binance

import (
	"testing"
	"time"

	"marlin/internal/gateway/exchange"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	final := cfg.withDefaults()
	assert.Equal(t, "https://fapi.binance.com", final.RESTBaseURL)
	assert.Equal(t, 15*time.Second, final.HTTPTimeout)
	assert.Equal(t, 10, final.Leverage)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	gw, err := New(Config{APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	assert.NotNil(t, gw)
}

func TestNewRejectsBadProxyURL(t *testing.T) {
	_, err := New(Config{APIKey: "k", APISecret: "s", ProxyURL: "://bad"})
	assert.Error(t, err)
}

func TestOrderSide(t *testing.T) {
	side, err := orderSide(exchange.DirectionBuy)
	require.NoError(t, err)
	assert.Equal(t, futures.SideTypeBuy, side)

	side, err = orderSide(exchange.DirectionSell)
	require.NoError(t, err)
	assert.Equal(t, futures.SideTypeSell, side)

	_, err = orderSide(exchange.Direction("hold"))
	assert.Error(t, err)
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "0.01", formatQuantity(0.01))
	assert.Equal(t, "1", formatQuantity(1))
	assert.Equal(t, "0.003", formatQuantity(0.003))
}

func TestNewClientOrderID(t *testing.T) {
	a := newClientOrderID()
	b := newClientOrderID()
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, len(a), 36)
	assert.Contains(t, a, "marlin-")
}

func TestParseFloat(t *testing.T) {
	assert.Equal(t, 60000.5, parseFloat(" 60000.5 "))
	assert.Zero(t, parseFloat("not a number"))
}

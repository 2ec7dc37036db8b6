package monitor

import (
	"context"
	"errors"
	"testing"

	"marlin/internal/gateway/exchange"
	"marlin/internal/ledger"
	"marlin/internal/position"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway scripts position snapshots and a per-symbol price sequence.
type stubGateway struct {
	positions map[string]exchange.PositionFields
	prices    map[string][]float64
	priceErr  map[string]error
	closed    []string
	closeErr  error
}

func (s *stubGateway) GetAccountSnapshot(ctx context.Context) (exchange.AccountSnapshot, error) {
	return exchange.AccountSnapshot{}, nil
}

func (s *stubGateway) GetPositions(ctx context.Context) (map[string]exchange.PositionFields, error) {
	out := make(map[string]exchange.PositionFields, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out, nil
}

func (s *stubGateway) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := s.priceErr[symbol]; err != nil {
		return 0, err
	}
	seq := s.prices[symbol]
	if len(seq) == 0 {
		return 0, errors.New("price sequence exhausted")
	}
	price := seq[0]
	s.prices[symbol] = seq[1:]
	return price, nil
}

func (s *stubGateway) PlaceOrder(ctx context.Context, symbol string, direction exchange.Direction, quantity float64) (string, error) {
	return "", errors.New("not used")
}

func (s *stubGateway) ClosePosition(ctx context.Context, symbol string) (string, error) {
	if s.closeErr != nil {
		return "", s.closeErr
	}
	s.closed = append(s.closed, symbol)
	delete(s.positions, symbol)
	return "99", nil
}

type memLedger struct {
	records []ledger.TradeRecord
}

func (m *memLedger) Append(rec ledger.TradeRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func longPosition(symbol string, size, entry float64) exchange.PositionFields {
	return exchange.PositionFields{
		Symbol: symbol, Side: exchange.SideLong, Size: size,
		EntryPrice: entry, MarkPrice: entry, Leverage: 10,
	}
}

func TestRunOnce_ReconciliationMatchesRemoteKeySet(t *testing.T) {
	gw := &stubGateway{positions: map[string]exchange.PositionFields{
		"BTCUSDT": longPosition("BTCUSDT", 0.01, 60000),
		"ETHUSDT": longPosition("ETHUSDT", 1, 3000),
	}}
	store := position.NewStore()
	store.SetTriggers("DOGEUSDT", exchange.SideLong, 1, 0) // stale local entry

	mon := New(gw, store, &memLedger{})
	require.NoError(t, mon.RunOnce(context.Background()))

	assert.Equal(t, 2, store.Len())
	_, ok := store.Get("BTCUSDT")
	assert.True(t, ok)
	_, ok = store.Get("ETHUSDT")
	assert.True(t, ok)
	_, ok = store.Get("DOGEUSDT")
	assert.False(t, ok)

	// Freshly discovered positions come in with triggers disabled.
	btc, _ := store.Get("BTCUSDT")
	assert.Zero(t, btc.TakeProfit)
	assert.Zero(t, btc.StopLoss)
}

func TestRunOnce_ReconciliationIsIdempotent(t *testing.T) {
	gw := &stubGateway{positions: map[string]exchange.PositionFields{
		"BTCUSDT": longPosition("BTCUSDT", 0.01, 60000),
	}}
	store := position.NewStore()
	mon := New(gw, store, &memLedger{})

	require.NoError(t, mon.RunOnce(context.Background()))
	first := store.List()
	require.NoError(t, mon.RunOnce(context.Background()))
	second := store.List()

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Symbol, second[i].Symbol)
		assert.Equal(t, first[i].Side, second[i].Side)
		assert.Equal(t, first[i].Size, second[i].Size)
		assert.Equal(t, first[i].TakeProfit, second[i].TakeProfit)
		assert.Equal(t, first[i].StopLoss, second[i].StopLoss)
	}
}

func TestRunOnce_ReconciliationPreservesTriggers(t *testing.T) {
	gw := &stubGateway{positions: map[string]exchange.PositionFields{
		"BTCUSDT": longPosition("BTCUSDT", 0.01, 60000),
	}}
	store := position.NewStore()
	store.SetTriggers("BTCUSDT", exchange.SideLong, 66000, 57000)
	// Too far from the triggers to fire during this test.
	gw.prices = map[string][]float64{"BTCUSDT": {60000, 60100}}

	mon := New(gw, store, &memLedger{})
	require.NoError(t, mon.RunOnce(context.Background()))
	require.NoError(t, mon.RunOnce(context.Background()))

	pos, ok := store.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 66000.0, pos.TakeProfit)
	assert.Equal(t, 57000.0, pos.StopLoss)
	assert.Equal(t, 0.01, pos.Size)
}

func TestRunOnce_LongTakeProfitFiresAtThreshold(t *testing.T) {
	gw := &stubGateway{
		positions: map[string]exchange.PositionFields{
			"BTCUSDT": longPosition("BTCUSDT", 0.01, 100),
		},
		prices: map[string][]float64{"BTCUSDT": {108, 109, 110, 111}},
	}
	store := position.NewStore()
	store.SetTriggers("BTCUSDT", exchange.SideLong, 110, 0)
	led := &memLedger{}
	mon := New(gw, store, led)

	for i := 0; i < 4; i++ {
		require.NoError(t, mon.RunOnce(context.Background()))
	}

	// Fires exactly once, at the first poll where price >= 110.
	require.Len(t, gw.closed, 1)
	assert.Equal(t, "BTCUSDT", gw.closed[0])
	require.Len(t, led.records, 1)
	assert.Equal(t, ledger.ReasonTakeProfit, led.records[0].Reason)
	assert.Equal(t, 110.0, led.records[0].Price)
	assert.Equal(t, "99", led.records[0].OrderID)
	assert.True(t, led.records[0].Success)
	_, ok := store.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestRunOnce_ShortTriggersAreDirectionAware(t *testing.T) {
	short := exchange.PositionFields{
		Symbol: "ETHUSDT", Side: exchange.SideShort, Size: 1,
		EntryPrice: 3000, MarkPrice: 3000, Leverage: 10,
	}
	t.Run("take-profit fires when price falls", func(t *testing.T) {
		gw := &stubGateway{
			positions: map[string]exchange.PositionFields{"ETHUSDT": short},
			prices:    map[string][]float64{"ETHUSDT": {2900}},
		}
		store := position.NewStore()
		store.SetTriggers("ETHUSDT", exchange.SideShort, 2900, 3200)
		led := &memLedger{}
		require.NoError(t, New(gw, store, led).RunOnce(context.Background()))
		require.Len(t, led.records, 1)
		assert.Equal(t, ledger.ReasonTakeProfit, led.records[0].Reason)
	})
	t.Run("stop-loss fires when price rises", func(t *testing.T) {
		gw := &stubGateway{
			positions: map[string]exchange.PositionFields{"ETHUSDT": short},
			prices:    map[string][]float64{"ETHUSDT": {3250}},
		}
		store := position.NewStore()
		store.SetTriggers("ETHUSDT", exchange.SideShort, 2900, 3200)
		led := &memLedger{}
		require.NoError(t, New(gw, store, led).RunOnce(context.Background()))
		require.Len(t, led.records, 1)
		assert.Equal(t, ledger.ReasonStopLoss, led.records[0].Reason)
	})
}

func TestRunOnce_PriceErrorIsolatedPerInstrument(t *testing.T) {
	gw := &stubGateway{
		positions: map[string]exchange.PositionFields{
			"AAAUSDT": longPosition("AAAUSDT", 1, 100),
			"BBBUSDT": longPosition("BBBUSDT", 1, 100),
		},
		prices:   map[string][]float64{"BBBUSDT": {120}},
		priceErr: map[string]error{"AAAUSDT": errors.New("rate limited")},
	}
	store := position.NewStore()
	store.SetTriggers("AAAUSDT", exchange.SideLong, 110, 0)
	store.SetTriggers("BBBUSDT", exchange.SideLong, 110, 0)
	led := &memLedger{}

	require.NoError(t, New(gw, store, led).RunOnce(context.Background()))

	// BBB's trigger fires despite AAA's price fetch failing.
	require.Len(t, led.records, 1)
	assert.Equal(t, "BBBUSDT", led.records[0].Symbol)
	_, ok := store.Get("AAAUSDT")
	assert.True(t, ok)
}

func TestRunOnce_FailedCloseKeepsTriggerArmed(t *testing.T) {
	gw := &stubGateway{
		positions: map[string]exchange.PositionFields{
			"BTCUSDT": longPosition("BTCUSDT", 0.01, 100),
		},
		prices:   map[string][]float64{"BTCUSDT": {111, 112}},
		closeErr: errors.New("exchange down"),
	}
	store := position.NewStore()
	store.SetTriggers("BTCUSDT", exchange.SideLong, 110, 0)
	led := &memLedger{}
	mon := New(gw, store, led)

	require.NoError(t, mon.RunOnce(context.Background()))
	require.Len(t, led.records, 1)
	assert.False(t, led.records[0].Success)
	pos, ok := store.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 110.0, pos.TakeProfit)

	// Exchange recovers; the next pass closes it.
	gw.closeErr = nil
	require.NoError(t, mon.RunOnce(context.Background()))
	require.Len(t, led.records, 2)
	assert.True(t, led.records[1].Success)
	_, ok = store.Get("BTCUSDT")
	assert.False(t, ok)
}

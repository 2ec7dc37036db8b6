package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"marlin/internal/config"
	"marlin/internal/decision"
	"marlin/internal/executor"
	"marlin/internal/gateway/exchange"
	"marlin/internal/ledger"
	"marlin/internal/monitor"
	"marlin/internal/position"
	"marlin/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	snapshotErr error
}

func (s *stubGateway) GetAccountSnapshot(ctx context.Context) (exchange.AccountSnapshot, error) {
	if s.snapshotErr != nil {
		return exchange.AccountSnapshot{}, s.snapshotErr
	}
	return exchange.AccountSnapshot{Total: 1000, Free: 1000}, nil
}

func (s *stubGateway) GetPositions(ctx context.Context) (map[string]exchange.PositionFields, error) {
	return map[string]exchange.PositionFields{}, nil
}

func (s *stubGateway) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return 100, nil
}

func (s *stubGateway) PlaceOrder(ctx context.Context, symbol string, direction exchange.Direction, quantity float64) (string, error) {
	return "1", nil
}

func (s *stubGateway) ClosePosition(ctx context.Context, symbol string) (string, error) {
	return "2", nil
}

const testBatch = `[{"symbol": "BTCUSDT", "signal": "BUY", "confidence": 0.9, "quantity": 0.01}]`

func newTestApp(t *testing.T, gw exchange.Gateway) (*App, string) {
	t.Helper()
	dir := t.TempDir()

	decisionPath := filepath.Join(dir, "decisions.json")
	require.NoError(t, os.WriteFile(decisionPath, []byte(testBatch), 0o644))
	source, err := decision.NewFileSource(decisionPath)
	require.NoError(t, err)

	led, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })

	store := position.NewStore()
	riskMgr := risk.NewManager(risk.Limits{
		MaxRiskPerTrade:      0.05,
		MaxMarginUtilization: 0.80,
		MaxPositions:         6,
		Leverage:             10,
	})
	exec := executor.New(executor.Config{
		MinFreeMargin:         100,
		OpenConfidence:        0.75,
		MaintenanceConfidence: 0.60,
		MaxMarginUtilization:  0.80,
		Leverage:              10,
	}, gw, store, riskMgr, led)

	return &App{
		cfg:     &config.Config{},
		gateway: gw,
		source:  source,
		store:   store,
		riskMgr: riskMgr,
		ledger:  led,
		exec:    exec,
		mon:     monitor.New(gw, store, led),
	}, decisionPath
}

func TestRunExecutorCycle_SnapshotFailureIsNotFatal(t *testing.T) {
	gw := &stubGateway{snapshotErr: errors.New("exchange timeout")}
	a, decisionPath := newTestApp(t, gw)

	// The cycle aborts but the loop must keep running: no error reaches
	// the scheduler, so nothing cancels the group.
	assert.NoError(t, a.runExecutorCycle(context.Background()))
	assert.NoError(t, a.runExecutorCycle(context.Background()))

	// The exchange recovers and a later batch executes normally.
	gw.snapshotErr = nil
	require.NoError(t, os.WriteFile(decisionPath, []byte(testBatch), 0o644))
	source, err := decision.NewFileSource(decisionPath)
	require.NoError(t, err)
	a.source = source
	assert.NoError(t, a.runExecutorCycle(context.Background()))

	summary, err := a.ledger.Summary()
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.SuccessfulTrades)
}

func TestRunExecutorCycle_LedgerFailureIsFatal(t *testing.T) {
	a, _ := newTestApp(t, &stubGateway{})
	require.NoError(t, a.ledger.Close())

	err := a.runExecutorCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, executor.ErrLedger))
}

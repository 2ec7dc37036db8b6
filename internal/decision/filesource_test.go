package decision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDecisions(t *testing.T, path, payload string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
}

func TestFileSource_FetchConsumesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")
	writeDecisions(t, path, `[{"symbol": "BTCUSDT", "signal": "BUY", "confidence": 0.8, "quantity": 0.01}]`)

	src, err := NewFileSource(path)
	require.NoError(t, err)

	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, SignalBuy, batch["BTCUSDT"].Signal)

	// The same batch is never handed out twice.
	batch, err = src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestFileSource_ReloadReplacesPendingBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")
	writeDecisions(t, path, `[{"symbol": "BTCUSDT", "signal": "BUY", "confidence": 0.8, "quantity": 0.01}]`)

	src, err := NewFileSource(path)
	require.NoError(t, err)

	writeDecisions(t, path, `[{"symbol": "ETHUSDT", "signal": "CLOSE", "confidence": 0.9}]`)
	src.reload()

	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	_, ok := batch["ETHUSDT"]
	assert.True(t, ok)
}

func TestFileSource_InvalidRewriteKeepsPreviousBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")
	writeDecisions(t, path, `[{"symbol": "BTCUSDT", "signal": "BUY", "confidence": 0.8, "quantity": 0.01}]`)

	src, err := NewFileSource(path)
	require.NoError(t, err)

	writeDecisions(t, path, `not json at all`)
	src.reload()

	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	_, ok := batch["BTCUSDT"]
	assert.True(t, ok)
}

func TestFileSource_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")

	src, err := NewFileSource(path)
	require.NoError(t, err)

	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestFileSource_FetchHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")
	src, err := NewFileSource(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Fetch(ctx)
	assert.Error(t, err)
}

func TestFileSource_EmptyPathRejected(t *testing.T) {
	_, err := NewFileSource("")
	assert.Error(t, err)
}

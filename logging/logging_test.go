package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, Level(0))
	assert.Equal(t, zap.DebugLevel, Level(10))
	assert.Equal(t, zap.InfoLevel, Level(20))
	assert.Equal(t, zap.WarnLevel, Level(30))
	assert.Equal(t, zap.ErrorLevel, Level(40))
	assert.Equal(t, zap.FatalLevel, Level(50))
}

func TestNewWritesWorkerFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	log, err := New(dir, "broker", 20)
	require.NoError(t, err)

	log.Info("fulfilment applied", zap.Int("orders", 3))
	log.Debug("filtered out by level")
	log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "broker.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "fulfilment applied")
	assert.Contains(t, string(data), `"orders":3`)
	assert.NotContains(t, string(data), "filtered out by level")
}

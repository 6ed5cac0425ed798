package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsemetrics/internal/config"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&config.Config{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := New(&config.Config{LogLevel: "info", LogFile: path, LogMaxSizeMB: 1, ServiceName: "pulsemetrics"})
	require.NoError(t, err)

	log.Info("hello")
	log.Debug("hidden")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"service":"pulsemetrics"`)
	assert.NotContains(t, string(data), "hidden")
}

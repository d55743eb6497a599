package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zap.AtomicLevel{
		"dev":     zap.NewAtomicLevelAt(zap.DebugLevel),
		"debug":   zap.NewAtomicLevelAt(zap.DebugLevel),
		"info":    zap.NewAtomicLevelAt(zap.InfoLevel),
		"warning": zap.NewAtomicLevelAt(zap.WarnLevel),
		"prod":    zap.NewAtomicLevelAt(zap.ErrorLevel),
		"":        zap.NewAtomicLevelAt(zap.ErrorLevel),
		"bogus":   zap.NewAtomicLevelAt(zap.ErrorLevel),
	}
	for in, want := range cases {
		assert.Equal(t, want.Level(), ParseLevel(in), in)
	}
}

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relay.log")

	logger, err := Setup(config.LogConfig{Level: "info", Format: "json", Outputs: []string{path}})
	require.NoError(t, err)

	logger.Info("room attached", zap.String("room", "ABC123"))
	logger.Debug("hidden")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"room":"ABC123"`)
	assert.NotContains(t, string(data), "hidden")
}

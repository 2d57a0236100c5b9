package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Geniuskaa/kids_competition/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "logs.txt")

	logger, atom, err := New(config.Logging{File: path, Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, atom.Level())

	logger.Info("dropped")
	logger.Warn("kept", zap.Int("category_id", 7))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.EqualValues(t, 7, line["category_id"])
}

func TestNew_LevelIsShared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.txt")

	logger, atom, err := New(config.Logging{File: path})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, atom.Level())

	logger.Debug("hidden")
	atom.SetLevel(zapcore.DebugLevel)
	logger.Debug("visible")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(config.Logging{Level: "loud"})
	require.Error(t, err)
}

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&LogConfig{Level: "debug", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	_, err = NewLogger(&LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)

	_, err = NewLogger(&LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "explorer.log")
	logger, err := NewLogger(&LogConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	logger.Info("hello")
	assert.FileExists(t, path)
}

func TestBlockLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	base, err := newStructuredLogger(&buf, slog.LevelDebug, &LogConfig{Format: "json"})
	require.NoError(t, err)

	NewBlockLogger(base, 823456, "abc").Info("新区块")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "block_watcher", record["component"])
	assert.Equal(t, float64(823456), record["block_height"])
	assert.Equal(t, "abc", record["block_hash"])
	assert.Equal(t, "新区块", record["msg"])
}

func TestParseLogLevel(t *testing.T) {
	level, err := parseLogLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = parseLogLevel("verbose")
	assert.Error(t, err)
}

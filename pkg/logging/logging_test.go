package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/csvarm/pkg/robot"
)

func TestNewWithWriter_LevelAndName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("replay", &buf, zapcore.InfoLevel)

	logger.Debugw("hidden")
	logger.Infow("replay started", "rows", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "replay started")
	assert.Contains(t, out, "replay")
	assert.Contains(t, out, `"rows": 3`)
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csvarm.log")
	logger, closeLog, err := New("csvarm", robot.LogConfig{Level: "debug", File: path})
	require.NoError(t, err)

	logger.Debugw("tick", "n", 1)
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tick")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New("csvarm", robot.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	logger := NewWithWriter("x", &bytes.Buffer{}, zapcore.InfoLevel)
	assert.Same(t, logger, OrNop(logger))
}

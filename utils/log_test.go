package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelsAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, INFO)
	l.s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	l.Debug("hidden %d", 1)
	l.Info("cycle %d", 7)
	l.WithPrefix("lat").Warn("override")
	l.WithPrefix("lat").WithPrefix("torque").Error("x=%.1f", 1.5)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2024-01-02T03:04:05Z [INFO] cycle 7", lines[0])
	assert.Equal(t, "2024-01-02T03:04:05Z [WARN] lat: override", lines[1])
	assert.Equal(t, "2024-01-02T03:04:05Z [ERROR] lat/torque: x=1.5", lines[2])

	l.SetMinLevel(TRACE)
	assert.True(t, l.Enabled(TRACE))
}

func TestLogger_NilWriterDiscards(t *testing.T) {
	l := NewLogger(nil, TRACE)
	l.Critical("nothing happens")
	assert.False(t, l.Enabled(CRITICAL))
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := NewFileLogger(path, DEBUG, false)
	require.NoError(t, err)
	l.Debug("hello %s", "file")
	require.NoError(t, l.Close())
	l.Info("after close is dropped")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] hello file")
	assert.NotContains(t, string(data), "after close")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, WARN, lvl)
	lvl, err = ParseLevel("CRITICAL")
	require.NoError(t, err)
	assert.Equal(t, CRITICAL, lvl)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

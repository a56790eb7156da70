package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log, err := New(Options{Path: path, Level: "info"})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("session started", zap.String("session", "abc"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "session started", entry["message"])
	assert.Equal(t, "abc", entry["session"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewWithoutSinksIsNop(t *testing.T) {
	log, err := New(Options{Level: "info"})
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.NotNil(t, OrNop(nil))
}

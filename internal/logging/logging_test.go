package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"operador/internal/config"
)

func TestConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.Log{Level: "warn"}, &buf)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown", zap.Int64("user_id", 7))
	require.NoError(t, log.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
	assert.EqualValues(t, 7, entry["user_id"])
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "operador.log")
	var buf bytes.Buffer
	log, err := NewWithWriter(config.Log{Level: "info", Path: path}, &buf)
	require.NoError(t, err)
	log.Info("to file")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

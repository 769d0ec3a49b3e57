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

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "kbagent.log")
	log := New(path, true)

	log.Info("source indexed", zap.String("source", "capital.txt"), zap.Int("chunks", 1))
	log.Debug("not written to file")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "source indexed", entry["msg"])
	assert.Equal(t, "capital.txt", entry["source"])
	assert.Contains(t, entry, "timestamp")
}

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bietl/internal/config"
)

// TestBuild_TeesConsoleAndFile writes one entry to both sinks.
func TestBuild_TeesConsoleAndFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bietl.log")
	var console bytes.Buffer

	log, closeFn, err := build(config.Log{Level: "info", File: path, Format: "json"}, &console)
	require.NoError(t, err)

	log.Info("dataset finished", zap.String("dataset", "ph_overview"), zap.Int("rows", 42))
	log.Debug("suppressed")
	closeFn()

	assert.Contains(t, console.String(), "dataset finished")
	assert.Contains(t, console.String(), "INFO")
	assert.NotContains(t, console.String(), "suppressed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "dataset finished", entry["msg"])
	assert.Equal(t, "ph_overview", entry["dataset"])
	assert.Equal(t, float64(42), entry["rows"])
	assert.Equal(t, "info", entry["level"])
}

// TestBuild_AppendsAcrossRuns keeps earlier runs in the file.
func TestBuild_AppendsAcrossRuns(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bietl.log")
	for i := 0; i < 2; i++ {
		log, closeFn, err := build(config.Log{Level: "info", File: path, Format: "console"}, &bytes.Buffer{})
		require.NoError(t, err)
		log.Info("run")
		closeFn()
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "run"))
}

func TestBuild_NoFile(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	log, closeFn, err := build(config.Log{Level: "debug"}, &console)
	require.NoError(t, err)
	log.Debug("hello")
	closeFn()
	assert.Contains(t, console.String(), "hello")
}

func TestBuild_BadLevel(t *testing.T) {
	t.Parallel()

	_, _, err := build(config.Log{Level: "loud"}, &bytes.Buffer{})
	require.Error(t, err)
}

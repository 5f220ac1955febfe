package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/kiln/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[config.LogLevel]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		"":        zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
	}
	for in, want := range tests {
		got, ok := ParseLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseLevel("loud")
	assert.False(t, ok)
	assert.Error(t, SetLevel("loud"))
}

func TestNewWritesJSONFile(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	out := filepath.Join(t.TempDir(), "kiln.log")
	cfg := config.DefaultConfig()
	cfg.Log = config.LogConfig{
		Level:  config.LogLevelInfo,
		Format: "json",
		Output: out,
		Fields: map[string]interface{}{"node": "n1"},
	}
	logger, closer, err := New(cfg)
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("service", "web").Msg("started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "started", entry["message"])
	assert.Equal(t, "kiln", entry["app"])
	assert.Equal(t, "n1", entry["node"])
	assert.Equal(t, "web", entry["service"])
	assert.NotContains(t, entry, zerolog.CallerFieldName)
}

func TestNewAddsCallerInDebug(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	out := filepath.Join(t.TempDir(), "kiln.log")
	cfg := config.DefaultConfig()
	cfg.App.Debug = true
	cfg.Log = config.LogConfig{Level: config.LogLevelInfo, Format: "json", Output: out}
	logger, closer, err := New(cfg)
	require.NoError(t, err)

	logger.Info().Msg("started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Contains(t, entry[zerolog.CallerFieldName], "logging_test.go")
}

func TestSetLevelAppliesGlobally(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	require.NoError(t, SetLevel(config.LogLevelError))
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}

func TestNewRejectsBadOutput(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Output = filepath.Join(t.TempDir(), "missing", "x.log")
	_, _, err := New(cfg)
	assert.Error(t, err)
}

package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobal(t *testing.T) {
	t.Helper()
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestNew(t *testing.T) {
	t.Run("console output goes to the configured writer", func(t *testing.T) {
		restoreGlobal(t)
		var buf bytes.Buffer

		l, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer l.Close()

		log.Info().Str("server", "filesystem").Msg("Server started")

		assert.Contains(t, buf.String(), `"server":"filesystem"`)
		assert.Contains(t, buf.String(), `"message":"Server started"`)
	})

	t.Run("file output", func(t *testing.T) {
		restoreGlobal(t)
		logFile := filepath.Join(t.TempDir(), "logs", "agentflow.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		log.Debug().Msg("debug line")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "debug line")
	})

	t.Run("level filters lower events", func(t *testing.T) {
		restoreGlobal(t)
		var buf bytes.Buffer

		l, err := New(Config{Level: "warn", Console: true, Output: &buf})
		require.NoError(t, err)
		defer l.Close()

		log.Info().Msg("hidden")
		log.Warn().Msg("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		restoreGlobal(t)
		var buf bytes.Buffer

		l, err := New(Config{Level: "loud", Console: true, Output: &buf})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.InfoLevel, l.GetZerolog().GetLevel())
	})

	t.Run("redaction masks secrets", func(t *testing.T) {
		restoreGlobal(t)
		var buf bytes.Buffer

		l, err := New(Config{Level: "info", Console: true, Redaction: true, Output: &buf})
		require.NoError(t, err)
		defer l.Close()

		log.Info().Str("key", "sk-or-v1-abcdefghijklmnopqrstuvwxyz").Msg("Provider configured")

		assert.NotContains(t, buf.String(), "abcdefghijklmnopqrstuvwxyz")
		assert.Contains(t, buf.String(), redacted)
	})

	t.Run("no outputs discards", func(t *testing.T) {
		restoreGlobal(t)

		l, err := New(Config{Level: "info"})
		require.NoError(t, err)
		assert.NoError(t, l.Close())
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
}

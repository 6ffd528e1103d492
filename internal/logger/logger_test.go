package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Level and JSON formatter", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Level = "debug"
		cfg.Format = "json"

		logger := New(cfg, "rotation")
		assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

		var buf bytes.Buffer
		logger.SetOutput(&buf)
		logger.WithField("pool_size", 3).Info("pool loaded")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "pool loaded", entry["message"])
		assert.Equal(t, "rotation", entry["logger"])
		assert.Equal(t, float64(3), entry["pool_size"])
	})

	t.Run("Unknown level falls back to info", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Level = "loud"
		assert.Equal(t, logrus.InfoLevel, New(cfg, "app").GetLevel())
	})

	t.Run("File output goes through the rotating writer", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Output = "file"
		cfg.Path = t.TempDir()
		cfg.Compress = false

		logger := New(cfg, "storage")
		logger.Info("fallback scan")

		data, err := os.ReadFile(filepath.Join(cfg.Path, "storage.log"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "fallback scan")
		assert.Contains(t, string(data), "logger=storage")
	})
}

func TestGet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "warn"
	require.NoError(t, Init(cfg))
	t.Cleanup(func() { _ = Init(DefaultConfig()) })

	first := Get("http")
	assert.Same(t, first, Get("http"), "Named loggers are cached")
	assert.NotSame(t, first, Get("app"))
	assert.Equal(t, logrus.WarnLevel, first.GetLevel())

	require.NoError(t, Init(DefaultConfig()))
	assert.NotSame(t, first, Get("http"), "Init drops cached loggers")
}

func TestNameHook(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.AddHook(&nameHook{name: "app"})

	logger.Info("started")
	logger.WithField("logger", "custom").Info("override")

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, "app", hook.AllEntries()[0].Data["logger"])
	assert.Equal(t, "custom", hook.AllEntries()[1].Data["logger"])
}

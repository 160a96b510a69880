package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSettingsDefaults(t *testing.T) {
	v, err := Read(t.TempDir())
	require.NoError(t, err)

	cfg := Settings(v)
	assert.Equal(t, "8080", cfg.Server.HttpPort)
	assert.Equal(t, 20, cfg.Pipeline.TranslationBatch)
	assert.Equal(t, 20, cfg.Pipeline.PhoneticBatch)
	assert.Equal(t, 5, cfg.Pipeline.GrammarBatch)
	assert.Equal(t, time.Hour, cfg.Watchdog.StuckTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Watchdog.Interval)
	assert.Equal(t, "medium", cfg.Whisper.Model)
}

func TestSettingsFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
app:
  environment: production
server:
  port: "9000"
  workers: 4
rabbitmq_host: rabbit
pipeline:
  target_language: Vietnamese
  grammar_batch: 3
watchdog:
  stuck_timeout: 30m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("PIPELINE_ACCENT", "British")

	v, err := Read(dir)
	require.NoError(t, err)
	cfg := Settings(v)

	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, "9000", cfg.Server.HttpPort)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.Equal(t, "rabbit", cfg.Queue.Host)
	assert.Equal(t, "Vietnamese", cfg.Pipeline.TargetLanguage)
	assert.Equal(t, 3, cfg.Pipeline.GrammarBatch)
	assert.Equal(t, "British", cfg.Pipeline.Accent)
	assert.Equal(t, 30*time.Minute, cfg.Watchdog.StuckTimeout)
}

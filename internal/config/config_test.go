package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "plotloom", cfg.Name)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 45*time.Second, cfg.GenerationTimeout())
	assert.Equal(t, 5*time.Second, cfg.AutoCommitDuration())
	assert.Equal(t, 5, cfg.Lifecycle.HistoryLimit)
	assert.Equal(t, 5, cfg.Lifecycle.MessageWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.ParsedPollInterval())
	assert.Equal(t, 60, cfg.Readiness.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.ParsedStabilityInterval())
	assert.Equal(t, 3, cfg.Readiness.StableSamples)
	assert.Equal(t, 10*time.Second, cfg.ParsedStabilityTimeout())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".plotloom", "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "claude-sonnet-4-20250514"
	cfg.Lifecycle.AutoCommit = "8s"
	cfg.Persistence.RedisAddr = "localhost:6379"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", loaded.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", loaded.LLM.Model)
	assert.Equal(t, 8*time.Second, loaded.AutoCommitDuration())
	assert.Equal(t, "localhost:6379", loaded.Persistence.RedisAddr)
}

func TestLoadConfigPartialFileGetsFallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := "llm:\n  provider: gemini\nlifecycle:\n  history_limit: 8\n"
	require.NoError(t, os.WriteFile(path, []byte(partial), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 8, cfg.Lifecycle.HistoryLimit)
	// Everything the file omits falls back to defaults.
	assert.Equal(t, "45s", cfg.LLM.Timeout)
	assert.Equal(t, "5s", cfg.Lifecycle.AutoCommit)
	assert.Equal(t, 5, cfg.Lifecycle.MessageWindow)
	assert.NotEmpty(t, cfg.Persistence.DatabasePath)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not a map"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 45*time.Second, ParseDuration("45s", time.Second))
	assert.Equal(t, 300*time.Millisecond, ParseDuration("300ms", time.Second))

	// Empty, malformed and non-positive inputs degrade to the fallback.
	assert.Equal(t, time.Second, ParseDuration("", time.Second))
	assert.Equal(t, time.Second, ParseDuration("soon", time.Second))
	assert.Equal(t, time.Second, ParseDuration("-5s", time.Second))
	assert.Equal(t, time.Second, ParseDuration("0s", time.Second))
}

func TestDefaultConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Join("ws", ".plotloom", "config.yaml"), DefaultConfigPath("ws"))
}

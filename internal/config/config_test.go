package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCUQUERY_API_URL", "")
	t.Setenv("DOCUQUERY_KV_TYPE", "")
	t.Setenv("DOCUQUERY_LOG_LEVEL", "")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	require.Equal(t, DefaultTimeoutSeconds, cfg.API.TimeoutSeconds)
	require.Equal(t, DefaultListLimit, cfg.API.ListLimit)
	require.Equal(t, "file", cfg.KVStore.Type)
	require.NotEmpty(t, cfg.KVStore.Data["dir"])
	require.Equal(t, 1, cfg.Upload.Concurrency)
	require.Equal(t, DefaultClearDelayMS, cfg.Upload.ClearDelayMS)
	require.Equal(t, []string{".pdf"}, cfg.Watch.Extensions)
	require.Equal(t, "local", cfg.Export.Type)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.True(t, cfg.LogConfig.Console)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `{
		"api": {"base_url": "http://backend:9000/api/", "timeout_seconds": 30},
		"kv_store": {"type": "memory"},
		"upload": {"concurrency": 3, "clear_delay_ms": -1}
	}`)
	t.Setenv("DOCUQUERY_API_URL", "")
	t.Setenv("DOCUQUERY_KV_TYPE", "")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://backend:9000/api", cfg.API.BaseURL)
	require.Equal(t, 30, cfg.API.TimeoutSeconds)
	require.Equal(t, "memory", cfg.KVStore.Type)
	require.Equal(t, 3, cfg.Upload.Concurrency)
	require.Equal(t, 0, cfg.Upload.ClearDelayMS)

	t.Setenv("DOCUQUERY_API_URL", "http://override:8000/api")
	cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://override:8000/api", cfg.API.BaseURL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("DOCUQUERY_API_URL", "")
	t.Setenv("DOCUQUERY_KV_TYPE", "")

	_, err := Load(writeConfig(t, `{"api": {"base_url": "not a url"}}`))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `{"kv_store": {"type": "redis"}}`))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `{"upload": {"concurrency": 64}}`))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `{not json`))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

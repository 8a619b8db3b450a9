package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing-ok.toml"))
	// an explicit file that does not exist is an error
	require.Error(t, err)
	assert.Nil(t, cfg)

	t.Chdir(t.TempDir())
	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.Extract.TargetLang)
	assert.Equal(t, 8*time.Second, cfg.Extract.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Extract.BrowserTimeout)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 2, cfg.Breaker.SuccessThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Security.ReputationTTL)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.InDelta(t, 2.0, cfg.Retry.Multiplier, 1e-9)
	assert.Empty(t, cfg.Extract.Providers)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gocatalog.toml")
	content := `
debug = true

[extract]
target_lang = "pt"
parallel = true
timeout = "3s"

[[extract.providers]]
name = "vidapi"
type = "api"
priority = 7
movie_url = "https://vidapi.example/movie/{tmdb}"
tv_url = "https://vidapi.example/tv/{tmdb}/{season}/{episode}"
referer = "https://vidapi.example/"
enabled = true

[[extract.providers]]
name = "sniffer"
type = "browser"
priority = 2
movie_url = "https://player.example/e/{imdb}"
enabled = true

[security]
reputation_ttl = "6h"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("GOCATALOG_SERVER_ADDR", ":9999")
	t.Setenv("TMDB_API_KEY", "tmdb-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "pt", cfg.Extract.TargetLang)
	assert.True(t, cfg.Extract.Parallel)
	assert.Equal(t, 3*time.Second, cfg.Extract.Timeout)
	assert.Equal(t, 6*time.Hour, cfg.Security.ReputationTTL)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "tmdb-from-env", cfg.TMDB.APIKey)

	require.Len(t, cfg.Extract.Providers, 2)
	assert.Equal(t, "vidapi", cfg.Extract.Providers[0].Name)
	assert.Equal(t, "api", cfg.Extract.Providers[0].Type)
	assert.Equal(t, 7, cfg.Extract.Providers[0].Priority)
	assert.Equal(t, "https://vidapi.example/", cfg.Extract.Providers[0].Referer)
	assert.Equal(t, "browser", cfg.Extract.Providers[1].Type)
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/devharvest/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 12000, cfg.Discovery.Target)
	assert.Equal(t, 100, cfg.Discovery.BatchSize)
	assert.Equal(t, 1000, cfg.Discovery.MaxSearchResults)
	assert.Equal(t, 10000, cfg.Fetch.Target)
	assert.Equal(t, 50, cfg.Fetch.BatchSize)
	assert.Equal(t, 5, cfg.Fetch.TopRepos)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Worker.RetryDelay)
	assert.Equal(t, 2*time.Second, cfg.Worker.ItemDelay)
	assert.Equal(t, 30*time.Minute, cfg.Worker.StaleTimeout)
	assert.Equal(t, 60*time.Second, cfg.GitHub.Cooldown)
	assert.Contains(t, cfg.Discovery.Locations, "Kyiv")
	assert.Equal(t, "none", cfg.Archive.Provider)
	assert.Equal(t, "interval", cfg.Schedule.Mode)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
discovery:
  target: 500
  locations: ["Lviv"]
worker:
  max_retries: 7
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Discovery.Target)
	assert.Equal(t, []string{"Lviv"}, cfg.Discovery.Locations)
	assert.Equal(t, 7, cfg.Worker.MaxRetries)
	// Untouched sections keep their defaults.
	assert.Equal(t, 50, cfg.Fetch.BatchSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base, err := config.Load("")
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero port", func(c *config.Config) { c.Server.Port = 0 }},
		{"zero max retries", func(c *config.Config) { c.Worker.MaxRetries = 0 }},
		{"zero stale timeout", func(c *config.Config) { c.Worker.StaleTimeout = 0 }},
		{"zero batch size", func(c *config.Config) { c.Fetch.BatchSize = 0 }},
		{"inverted year range", func(c *config.Config) { c.Discovery.YearsEnd = c.Discovery.YearsStart }},
		{"unknown archive provider", func(c *config.Config) { c.Archive.Provider = "ftp" }},
		{"unknown publish provider", func(c *config.Config) { c.Publish.Provider = "kafka" }},
		{"unknown schedule mode", func(c *config.Config) { c.Schedule.Mode = "hourly" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestYearsExpandsRange(t *testing.T) {
	d := config.DiscoveryConfig{YearsStart: 2015, YearsEnd: 2018}
	assert.Equal(t, []int{2015, 2016, 2017}, d.Years())
}

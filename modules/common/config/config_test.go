package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "server-key")
	t.Setenv("GEMINI_BACKEND", "")
	t.Setenv("VEO_POLL_INTERVAL", "")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_KEY", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendGemini, cfg.GeminiBackend)
	assert.Equal(t, 10*time.Second, cfg.VeoPollInterval)
	assert.False(t, cfg.HistoryEnabled())
}

func TestGetDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, getDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "15")
	assert.Equal(t, 15*time.Second, getDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "soon")
	assert.Equal(t, time.Second, getDuration("TEST_DURATION", time.Second))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{GeminiBackend: BackendGemini, GeminiAPIKey: "k", VeoPollInterval: time.Second}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"server key", func(c *Config) {}, false},
		{"redis keys only", func(c *Config) { c.GeminiAPIKey = ""; c.RedisHost = "localhost" }, false},
		{"no key source", func(c *Config) { c.GeminiAPIKey = "" }, true},
		{"vertex without project", func(c *Config) { c.GeminiBackend = BackendVertex }, true},
		{"vertex with project", func(c *Config) { c.GeminiBackend = BackendVertex; c.GoogleCloudProject = "p" }, false},
		{"unknown backend", func(c *Config) { c.GeminiBackend = "openai" }, true},
		{"zero poll", func(c *Config) { c.VeoPollInterval = 0 }, true},
		{"half supabase", func(c *Config) { c.SupabaseURL = "https://x.supabase.co" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if tt.wantErr {
				assert.Error(t, c.validate())
			} else {
				assert.NoError(t, c.validate())
			}
		})
	}
}

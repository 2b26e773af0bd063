package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.apex.build", cfg.BaseURL)
	assert.Equal(t, 8, cfg.StreamMaxRetries)
	assert.Equal(t, time.Second, cfg.StreamBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.StreamMaxDelay)
	assert.Equal(t, 5*time.Second, cfg.StreamHeartbeatInterval)
	assert.False(t, cfg.IsProduction)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APEX_API_URL", "http://localhost:8000")
	t.Setenv("APEX_STREAM_MAX_RETRIES", "3")
	t.Setenv("APEX_STREAM_BASE_DELAY", "250")    // bare milliseconds
	t.Setenv("APEX_STREAM_MAX_DELAY", "10s")     // duration string

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.Equal(t, 3, cfg.StreamMaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.StreamBaseDelay)
	assert.Equal(t, 10*time.Second, cfg.StreamMaxDelay)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "relative base url",
			mutate:  func(c *Config) { c.BaseURL = "api.apex.build" },
			wantErr: "not an absolute URL",
		},
		{
			name: "plain http in production",
			mutate: func(c *Config) {
				c.BaseURL = "http://api.apex.build"
				c.IsProduction = true
			},
			wantErr: "https in production",
		},
		{
			name:    "zero retries",
			mutate:  func(c *Config) { c.StreamMaxRetries = 0 },
			wantErr: "MAX_RETRIES",
		},
		{
			name:    "max delay below base",
			mutate:  func(c *Config) { c.StreamMaxDelay = c.StreamBaseDelay / 2 },
			wantErr: "base <= max",
		},
		{
			name:    "heartbeat timeout below interval",
			mutate:  func(c *Config) { c.StreamHeartbeatTimeout = time.Second },
			wantErr: "heartbeat timeout",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{
				BaseURL:                 "https://api.apex.build",
				StreamMaxRetries:        8,
				StreamBaseDelay:         time.Second,
				StreamMaxDelay:          30 * time.Second,
				StreamStabilityWindow:   30 * time.Second,
				StreamHeartbeatTimeout:  30 * time.Second,
				StreamHeartbeatInterval: 5 * time.Second,
			}
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

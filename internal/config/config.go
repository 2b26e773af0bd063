// Package config loads and validates configuration for the APEX.BUILD client
// tools from the environment (optionally seeded from a .env file).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment constants
const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// Config holds validated configuration for the client tools.
type Config struct {
	// Platform API
	BaseURL string
	APIKey  string
	Token   string

	// Stream tuning
	StreamMaxRetries        int
	StreamBaseDelay         time.Duration
	StreamMaxDelay          time.Duration
	StreamStabilityWindow   time.Duration
	StreamHeartbeatTimeout  time.Duration
	StreamHeartbeatInterval time.Duration

	// Preview proxy
	ProxyListenAddr  string
	ProxyRedisURL    string
	ProxyAllowOrigin string
	ProxyRouteTTL    time.Duration

	// Environment
	Environment  string
	IsProduction bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		BaseURL: getEnv("APEX_API_URL", "https://api.apex.build"),
		APIKey:  os.Getenv("APEX_API_KEY"),
		Token:   os.Getenv("APEX_TOKEN"),

		StreamMaxRetries:        getEnvInt("APEX_STREAM_MAX_RETRIES", 8),
		StreamBaseDelay:         getEnvDuration("APEX_STREAM_BASE_DELAY", time.Second),
		StreamMaxDelay:          getEnvDuration("APEX_STREAM_MAX_DELAY", 30*time.Second),
		StreamStabilityWindow:   getEnvDuration("APEX_STREAM_STABILITY_WINDOW", 30*time.Second),
		StreamHeartbeatTimeout:  getEnvDuration("APEX_STREAM_HEARTBEAT_TIMEOUT", 30*time.Second),
		StreamHeartbeatInterval: getEnvDuration("APEX_STREAM_HEARTBEAT_INTERVAL", 5*time.Second),

		ProxyListenAddr:  getEnv("APEX_PROXY_ADDR", ":8788"),
		ProxyRedisURL:    os.Getenv("APEX_PROXY_REDIS_URL"),
		ProxyAllowOrigin: getEnv("APEX_PROXY_ALLOW_ORIGIN", "*"),
		ProxyRouteTTL:    getEnvDuration("APEX_PROXY_ROUTE_TTL", 60*time.Second),

		Environment: getEnv("APEX_ENV", EnvDevelopment),
	}
	cfg.IsProduction = cfg.Environment == EnvProduction

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Called by Load; exported for tests
// and for callers that build a Config by hand.
func (c *Config) Validate() error {
	var problems []string

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("APEX_API_URL %q is not an absolute URL", c.BaseURL))
	} else if c.IsProduction && u.Scheme != "https" {
		problems = append(problems, "APEX_API_URL must use https in production")
	}

	if c.StreamMaxRetries < 1 {
		problems = append(problems, "APEX_STREAM_MAX_RETRIES must be >= 1")
	}
	if c.StreamBaseDelay <= 0 || c.StreamMaxDelay < c.StreamBaseDelay {
		problems = append(problems, "stream delays must satisfy 0 < base <= max")
	}
	if c.StreamHeartbeatInterval <= 0 || c.StreamHeartbeatTimeout <= c.StreamHeartbeatInterval {
		problems = append(problems, "heartbeat timeout must exceed the check interval")
	}

	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept bare milliseconds for parity with the web client's settings.
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// profileFile is the optional YAML file pointed to by E2E_CONFIG. It holds one
// profile per environment so the same suite binary can target local, staging,
// or a PR preview deployment.
type profileFile struct {
	Environments map[string]Config `yaml:"environments"`
}

// Load builds the configuration from, in increasing precedence:
// defaults, the profile matching ENVIRONMENT in the E2E_CONFIG YAML file,
// and individual environment variables. A .env file is read first when
// present so local runs don't need exports.
func Load() (*Config, error) {
	// Missing .env is the normal case in CI.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: os.Getenv("ENVIRONMENT"),
	}
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
	}

	if path := os.Getenv("E2E_CONFIG"); path != "" {
		if err := cfg.mergeProfile(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("STAGING_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("STAGING_WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := os.Getenv("E2E_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if d, ok := envDuration("E2E_AGENT_TIMEOUT"); ok {
		cfg.AgentTimeout = d
	}
	if d, ok := envDuration("E2E_MAX_EVENT_GAP"); ok {
		cfg.MaxEventGap = d
	}

	cfg.E2ETesting = envBool("E2E_TESTING")
	cfg.StagingE2E = envBool("STAGING_E2E_TEST")
	cfg.ClickHouseRequired = envBool("CLICKHOUSE_REQUIRED")

	cfg.applyDefaults()
	cfg.DeriveWSURL()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("e2e configuration loaded",
		"environment", cfg.Environment,
		"staging_e2e", cfg.StagingE2E,
		"base_url", cfg.BaseURL)

	return cfg, nil
}

// mergeProfile overlays the profile matching cfg.Environment from the YAML
// file at path. An absent profile for the environment is not an error — env
// vars may carry the whole configuration.
func (c *Config) mergeProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading e2e config %s: %w", path, err)
	}
	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing e2e config %s: %w", path, err)
	}
	profile, ok := file.Environments[c.Environment]
	if !ok {
		slog.Warn("no profile for environment in config file",
			"environment", c.Environment, "path", path)
		return nil
	}

	if profile.BaseURL != "" {
		c.BaseURL = profile.BaseURL
	}
	if profile.WSURL != "" {
		c.WSURL = profile.WSURL
	}
	if profile.JWTSecret != "" {
		c.JWTSecret = profile.JWTSecret
	}
	if profile.ConnectTimeout != 0 {
		c.ConnectTimeout = profile.ConnectTimeout
	}
	if profile.AgentTimeout != 0 {
		c.AgentTimeout = profile.AgentTimeout
	}
	if profile.MaxEventGap != 0 {
		c.MaxEventGap = profile.MaxEventGap
	}
	if profile.MaxInitialDelay != 0 {
		c.MaxInitialDelay = profile.MaxInitialDelay
	}
	return nil
}

func envBool(key string) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// Legacy truthy spellings used by the CI pipelines.
		return v == "yes" || v == "on"
	}
	return b
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, ignoring", "key", key, "value", v)
		return 0, false
	}
	return d, true
}

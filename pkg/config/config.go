// Package config is the single source of truth for staging E2E configuration:
// which deployment the suites target, the JWT secret for minting test users,
// and the timing budgets applied to agent runs.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied when neither environment nor profile file say otherwise.
const (
	DefaultEnvironment  = "local"
	DefaultJWTSecret    = "goldenpath-e2e-local-secret"
	DefaultConnTimeout  = 15 * time.Second
	DefaultAgentTimeout = 120 * time.Second
	DefaultMaxEventGap  = 30 * time.Second
	DefaultFirstEvent   = 15 * time.Second
)

// Config drives every suite and the unified runner.
type Config struct {
	Environment string `yaml:"environment"`

	// Target deployment. WSURL is derived from BaseURL when unset.
	BaseURL string `yaml:"base_url"`
	WSURL   string `yaml:"ws_url"`

	// Secret shared with the auth service for minting test tokens.
	JWTSecret string `yaml:"jwt_secret"`

	// Timing budgets.
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	AgentTimeout    time.Duration `yaml:"agent_timeout"`
	MaxEventGap     time.Duration `yaml:"max_event_gap"`
	MaxInitialDelay time.Duration `yaml:"max_initial_delay"`

	// Mode flags, from E2E_TESTING / STAGING_E2E_TEST / CLICKHOUSE_REQUIRED.
	E2ETesting         bool `yaml:"-"`
	StagingE2E         bool `yaml:"-"`
	ClickHouseRequired bool `yaml:"-"`
}

// Validate checks the configuration is usable for its mode.
func (c *Config) Validate() error {
	if c.StagingE2E && c.BaseURL == "" {
		return fmt.Errorf("STAGING_E2E_TEST is set but no STAGING_BASE_URL configured")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must not be empty")
	}
	return nil
}

// DeriveWSURL computes the WebSocket endpoint from the HTTP base URL
// (http→ws, https→wss, path /ws) unless an explicit WS URL is configured.
func (c *Config) DeriveWSURL() {
	if c.WSURL != "" || c.BaseURL == "" {
		return
	}
	ws := c.BaseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	c.WSURL = strings.TrimRight(ws, "/") + "/ws"
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.JWTSecret == "" {
		c.JWTSecret = DefaultJWTSecret
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnTimeout
	}
	if c.AgentTimeout == 0 {
		c.AgentTimeout = DefaultAgentTimeout
	}
	if c.MaxEventGap == 0 {
		c.MaxEventGap = DefaultMaxEventGap
	}
	if c.MaxInitialDelay == 0 {
		c.MaxInitialDelay = DefaultFirstEvent
	}
}

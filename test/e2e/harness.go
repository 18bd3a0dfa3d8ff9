// Package e2e contains the Golden Path end-to-end suites and their shared
// harness. By default each test boots an in-process scripted replica of the
// staging surface; set STAGING_E2E_TEST=1 (plus STAGING_BASE_URL) to point
// the same suites at a real deployment.
package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goldenpath-ai/staging-e2e/pkg/authtest"
	"github.com/goldenpath-ai/staging-e2e/pkg/config"
	"github.com/goldenpath-ai/staging-e2e/pkg/mockstaging"
)

// Harness wires one test to its target deployment.
type Harness struct {
	Config  *config.Config
	BaseURL string
	WSURL   string
	Minter  *authtest.Minter

	// Mock is nil when running against real staging.
	Mock *mockstaging.Server

	t *testing.T
}

// harnessConfig holds options accumulated before creating the harness.
type harnessConfig struct {
	scripts         *mockstaging.ScriptBook
	agentTimeout    time.Duration
	maxEventGap     time.Duration
	maxInitialDelay time.Duration
}

// Option configures the harness.
type Option func(*harnessConfig)

// WithScripts installs scripted runs on the local replica. Ignored in
// staging mode, where real agents answer.
func WithScripts(book *mockstaging.ScriptBook) Option {
	return func(hc *harnessConfig) { hc.scripts = book }
}

// WithAgentTimeout overrides the per-run collection timeout.
func WithAgentTimeout(d time.Duration) Option {
	return func(hc *harnessConfig) { hc.agentTimeout = d }
}

// WithMaxEventGap overrides the inter-event gap budget.
func WithMaxEventGap(d time.Duration) Option {
	return func(hc *harnessConfig) { hc.maxEventGap = d }
}

// WithMaxInitialDelay overrides the time-to-first-event budget.
func WithMaxInitialDelay(d time.Duration) Option {
	return func(hc *harnessConfig) { hc.maxInitialDelay = d }
}

// NewHarness creates a harness for one test. Replica shutdown is registered
// via t.Cleanup automatically.
func NewHarness(t *testing.T, opts ...Option) *Harness {
	t.Helper()

	hc := &harnessConfig{}
	for _, opt := range opts {
		opt(hc)
	}

	cfg, err := config.Load()
	require.NoError(t, err, "loading e2e configuration")

	if hc.agentTimeout != 0 {
		cfg.AgentTimeout = hc.agentTimeout
	}
	if hc.maxEventGap != 0 {
		cfg.MaxEventGap = hc.maxEventGap
	}
	if hc.maxInitialDelay != 0 {
		cfg.MaxInitialDelay = hc.maxInitialDelay
	}

	h := &Harness{
		Config: cfg,
		Minter: authtest.NewMinter(cfg.JWTSecret),
		t:      t,
	}

	if cfg.StagingE2E {
		h.BaseURL = cfg.BaseURL
		h.WSURL = cfg.WSURL
		return h
	}

	var mockOpts []mockstaging.Option
	if hc.scripts != nil {
		mockOpts = append(mockOpts, mockstaging.WithScripts(hc.scripts))
	}
	mock := mockstaging.New(cfg.JWTSecret, mockOpts...)
	require.NoError(t, mock.Start())
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mock.Shutdown(shutdownCtx)
	})

	h.Mock = mock
	h.BaseURL = mock.BaseURL
	h.WSURL = mock.WSURL
	return h
}

// Staging reports whether the harness targets a real deployment.
func (h *Harness) Staging() bool {
	return h.Mock == nil
}

// RequireLocal skips the test in staging mode. Used by suites that inject
// failures (drops, stalls) — those require the scripted replica.
func (h *Harness) RequireLocal(t *testing.T, reason string) {
	t.Helper()
	if h.Staging() {
		t.Skipf("requires the local scripted replica: %s", reason)
	}
}

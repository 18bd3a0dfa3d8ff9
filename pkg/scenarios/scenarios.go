// Package scenarios holds the runnable checks behind the unified e2e-runner
// CLI. Each scenario exercises one slice of the Golden Path against a live
// deployment and reports violations instead of aborting, so a single run can
// surface every failing expectation at once.
package scenarios

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/goldenpath-ai/staging-e2e/pkg/authtest"
	"github.com/goldenpath-ai/staging-e2e/pkg/config"
	"github.com/goldenpath-ai/staging-e2e/pkg/events"
	"github.com/goldenpath-ai/staging-e2e/pkg/httpapi"
	"github.com/goldenpath-ai/staging-e2e/pkg/metrics"
	"github.com/goldenpath-ai/staging-e2e/pkg/wsclient"
)

// Result is the outcome of one scenario run.
type Result struct {
	Name       string        `json:"name"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration"`
	Violations []string      `json:"violations,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Scenario is one runnable end-to-end check.
type Scenario interface {
	Name() string
	Description() string
	Run(ctx context.Context, cfg *config.Config) Result
}

// All returns every scenario, wired to the given recorder.
func All(rec *metrics.Recorder) []Scenario {
	return []Scenario{
		&healthScenario{},
		&goldenPathScenario{rec: rec},
		&authRejectionScenario{},
	}
}

// ────────────────────────────────────────────────────────────
// health — deployment is up and reports healthy
// ────────────────────────────────────────────────────────────

type healthScenario struct{}

func (s *healthScenario) Name() string        { return "health" }
func (s *healthScenario) Description() string { return "Deployment /health reports healthy" }

func (s *healthScenario) Run(ctx context.Context, cfg *config.Config) Result {
	start := time.Now()
	client := httpapi.New(cfg.BaseURL, "")
	if err := client.WaitReady(ctx, cfg.ConnectTimeout); err != nil {
		return Result{Name: s.Name(), Duration: time.Since(start), Error: err.Error()}
	}
	return Result{Name: s.Name(), Passed: true, Duration: time.Since(start)}
}

// ────────────────────────────────────────────────────────────
// golden-path — authenticate, connect, run an agent, validate the stream
// ────────────────────────────────────────────────────────────

type goldenPathScenario struct {
	rec *metrics.Recorder
}

func (s *goldenPathScenario) Name() string { return "golden-path" }
func (s *goldenPathScenario) Description() string {
	return "Full user journey: auth, WebSocket, agent run, critical event sequence"
}

func (s *goldenPathScenario) Run(ctx context.Context, cfg *config.Config) Result {
	start := time.Now()
	fail := func(err error) Result {
		return Result{Name: s.Name(), Duration: time.Since(start), Error: err.Error()}
	}

	user, err := authtest.NewMinter(cfg.JWTSecret).MintUser("runner")
	if err != nil {
		return fail(fmt.Errorf("minting test user: %w", err))
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	ws, err := wsclient.Dial(dialCtx, cfg.WSURL, wsclient.Options{Token: user.Token})
	if err != nil {
		return fail(err)
	}
	defer func() { _ = ws.Close() }()

	runID := uuid.NewString()
	sent := time.Now()
	err = ws.SendAgentRequest(ctx, wsclient.AgentRequest{
		Type:     "agent_request",
		Agent:    "assistant",
		Message:  "Summarize this month's infrastructure cost drivers.",
		ThreadID: uuid.NewString(),
		RunID:    runID,
		UserID:   user.UserID,
	})
	if err != nil {
		return fail(err)
	}

	records, _ := ws.CollectRun(runID, cfg.AgentTimeout)
	rep := events.Evaluate(records, events.Options{
		Start:           sent,
		MaxInitialDelay: cfg.MaxInitialDelay,
		MaxGap:          cfg.MaxEventGap,
		RequireContent:  true,
	})

	if s.rec != nil {
		var firstEvent time.Duration
		if len(records) > 0 {
			firstEvent = records[0].Received.Sub(sent)
		}
		s.rec.ObserveRun("assistant", time.Since(sent), firstEvent, rep.Passed())
		for _, r := range records {
			s.rec.CountEvent(r.Type)
		}
	}

	return Result{
		Name:       s.Name(),
		Passed:     rep.Passed(),
		Duration:   time.Since(start),
		Violations: rep.Violations(),
	}
}

// ────────────────────────────────────────────────────────────
// auth-rejection — expired and malformed credentials are refused
// ────────────────────────────────────────────────────────────

type authRejectionScenario struct{}

func (s *authRejectionScenario) Name() string { return "auth-rejection" }
func (s *authRejectionScenario) Description() string {
	return "Expired and malformed tokens are rejected on HTTP and WebSocket"
}

func (s *authRejectionScenario) Run(ctx context.Context, cfg *config.Config) Result {
	start := time.Now()
	var violations []string

	stale, err := authtest.NewMinter(cfg.JWTSecret).MintExpired("runner")
	if err != nil {
		return Result{Name: s.Name(), Duration: time.Since(start), Error: err.Error()}
	}

	if _, status, err := httpapi.New(cfg.BaseURL, stale.Token).ValidateToken(ctx); err != nil {
		violations = append(violations, "validate with expired token: "+err.Error())
	} else if status != http.StatusUnauthorized {
		violations = append(violations, fmt.Sprintf("expired token got status %d, want 401", status))
	}

	if _, status, err := httpapi.New(cfg.BaseURL, authtest.MalformedToken()).ValidateToken(ctx); err != nil {
		violations = append(violations, "validate with malformed token: "+err.Error())
	} else if status != http.StatusUnauthorized {
		violations = append(violations, fmt.Sprintf("malformed token got status %d, want 401", status))
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if ws, err := wsclient.Dial(dialCtx, cfg.WSURL, wsclient.Options{Token: stale.Token}); err == nil {
		_ = ws.Close()
		violations = append(violations, "WebSocket dial with expired token was accepted")
	}

	return Result{
		Name:       s.Name(),
		Passed:     len(violations) == 0,
		Duration:   time.Since(start),
		Violations: violations,
	}
}

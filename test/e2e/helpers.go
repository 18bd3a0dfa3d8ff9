package e2e

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldenpath-ai/staging-e2e/pkg/authtest"
	"github.com/goldenpath-ai/staging-e2e/pkg/events"
	"github.com/goldenpath-ai/staging-e2e/pkg/httpapi"
	"github.com/goldenpath-ai/staging-e2e/pkg/wsclient"
	"github.com/goldenpath-ai/staging-e2e/test/e2e/testdata"
)

// ────────────────────────────────────────────────────────────
// User and connection helpers
// ────────────────────────────────────────────────────────────

// NewUser mints a disposable authenticated user for this test.
func (h *Harness) NewUser(t *testing.T) authtest.TestUser {
	t.Helper()
	user, err := h.Minter.MintUser("e2e")
	require.NoError(t, err)
	return user
}

// ExpiredUser mints a user whose token already expired.
func (h *Harness) ExpiredUser(t *testing.T) authtest.TestUser {
	t.Helper()
	user, err := h.Minter.MintExpired("e2e")
	require.NoError(t, err)
	return user
}

// OpenSocket dials the WS endpoint as the given user; Close is registered
// via t.Cleanup.
func (h *Harness) OpenSocket(t *testing.T, user authtest.TestUser) *wsclient.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), h.Config.ConnectTimeout)
	defer cancel()
	ws, err := wsclient.Dial(ctx, h.WSURL, wsclient.Options{
		Token: user.Token,
		RunID: t.Name(),
	})
	require.NoError(t, err, "WebSocket dial as %s", user.Email)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// API returns an HTTP client authenticated with the given token
// (empty for unauthenticated calls).
func (h *Harness) API(token string) *httpapi.Client {
	return httpapi.New(h.BaseURL, token)
}

// ────────────────────────────────────────────────────────────
// Run helpers
// ────────────────────────────────────────────────────────────

// Run identifies one in-flight agent run.
type Run struct {
	ID       string
	ThreadID string
	User     authtest.TestUser
	Sent     time.Time
}

// StartRun sends an agent request and returns the run handle.
func (h *Harness) StartRun(t *testing.T, ws *wsclient.Client, user authtest.TestUser, agent, message string) Run {
	t.Helper()
	run := Run{
		ID:       uuid.NewString(),
		ThreadID: uuid.NewString(),
		User:     user,
		Sent:     time.Now(),
	}
	err := ws.SendAgentRequest(context.Background(), wsclient.AgentRequest{
		Type:     "agent_request",
		Agent:    agent,
		Message:  message,
		ThreadID: run.ThreadID,
		RunID:    run.ID,
		UserID:   user.UserID,
	})
	require.NoError(t, err)
	return run
}

// CollectRun waits for the run to reach a terminal event and returns its
// events. The stream ending early is reported by the validator, not here.
func (h *Harness) CollectRun(t *testing.T, ws *wsclient.Client, run Run) []events.Record {
	t.Helper()
	records, err := ws.CollectRun(run.ID, h.Config.AgentTimeout)
	if err != nil {
		t.Logf("run %s did not reach a terminal event: %v", run.ID, err)
	}
	return records
}

// RequireCriticalSequence asserts the run produced the five critical events
// in order within the configured timing budgets.
func (h *Harness) RequireCriticalSequence(t *testing.T, records []events.Record, run Run) {
	t.Helper()
	rep := events.Evaluate(records, events.Options{
		Start:           run.Sent,
		MaxInitialDelay: h.Config.MaxInitialDelay,
		MaxGap:          h.Config.MaxEventGap,
		RequireContent:  true,
	})
	require.Truef(t, rep.Passed(),
		"critical event sequence violated:\n  %s\nreceived %d events",
		strings.Join(rep.Violations(), "\n  "), len(records))
}

// AssertRunOwnership asserts every event of the run carries the run's own
// identifiers — the cross-contamination check for isolation suites.
func AssertRunOwnership(t *testing.T, records []events.Record, run Run) {
	t.Helper()
	for i, rec := range records {
		assert.Equalf(t, run.ID, rec.RunID(), "event %d (%s) has wrong run_id", i, rec.Type)
		assert.Equalf(t, run.User.UserID, rec.UserID(), "event %d (%s) has wrong user_id", i, rec.Type)
		assert.Equalf(t, run.ThreadID, rec.ThreadID(), "event %d (%s) has wrong thread_id", i, rec.Type)
	}
}

// ────────────────────────────────────────────────────────────
// Structural event assertions
// ────────────────────────────────────────────────────────────

// AssertEventsInOrder verifies that each expected event appears in the actual
// events in the correct relative order. Extra and duplicate actual events are
// tolerated — only the expected sequence must be found in order.
func AssertEventsInOrder(t *testing.T, actual []events.Record, expected []testdata.ExpectedEvent) {
	t.Helper()

	expectedIdx := 0
	for _, rec := range actual {
		if expectedIdx >= len(expected) {
			break
		}
		if matchesExpected(rec, expected[expectedIdx]) {
			expectedIdx++
		}
	}

	if !assert.Equal(t, len(expected), expectedIdx,
		"not all expected WS events found in order (matched %d/%d)", expectedIdx, len(expected)) {
		t.Logf("next unmatched expected event: %s", formatExpected(expected[expectedIdx]))
		for i, rec := range actual {
			t.Logf("actual[%d]: %s", i, rec.Type)
		}
	}
}

func matchesExpected(rec events.Record, exp testdata.ExpectedEvent) bool {
	if rec.Type != exp.Type {
		return false
	}
	if exp.Tool != "" && rec.DataField("tool") != exp.Tool {
		return false
	}
	if exp.Contains != "" {
		content := rec.DataField("response") + rec.DataField("thought") + rec.Field("message")
		if !strings.Contains(content, exp.Contains) {
			return false
		}
	}
	return true
}

func formatExpected(exp testdata.ExpectedEvent) string {
	s := exp.Type
	if exp.Tool != "" {
		s += fmt.Sprintf(" tool=%s", exp.Tool)
	}
	if exp.Contains != "" {
		s += fmt.Sprintf(" contains=%q", exp.Contains)
	}
	return s
}

// classifyAuthError asserts an error body carries one of the rejection
// substrings the platform uses for auth failures.
func classifyAuthError(t *testing.T, body map[string]any, substrings ...string) {
	t.Helper()
	msg, _ := body["error"].(string)
	require.NotEmpty(t, msg, "auth failure response carries no error message")
	for _, sub := range substrings {
		if strings.Contains(strings.ToLower(msg), sub) {
			return
		}
	}
	t.Fatalf("error %q matches none of %v", msg, substrings)
}

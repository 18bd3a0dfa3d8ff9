package e2e

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldenpath-ai/staging-e2e/pkg/events"
	"github.com/goldenpath-ai/staging-e2e/pkg/mockstaging"
	"github.com/goldenpath-ai/staging-e2e/test/e2e/testdata"
)

// TestResilience_MalformedPayloadThenRecovery sends invalid JSON, expects an
// error event, then completes a well-formed run on the same connection.
func TestResilience_MalformedPayloadThenRecovery(t *testing.T) {
	h := NewHarness(t)
	user := h.NewUser(t)
	ws := h.OpenSocket(t, user)

	require.NoError(t, ws.SendRaw(context.Background(), []byte(`{"type":"agent_request",`)))

	errEvt, err := ws.WaitForEventType(events.TypeError, h.Config.ConnectTimeout)
	require.NoError(t, err, "malformed payload must be answered with an error event")
	assert.NotEmpty(t, errEvt.Field("message"))

	run := h.StartRun(t, ws, user, "assistant", "Back to business: summarize service health.")
	records := h.CollectRun(t, ws, run)
	h.RequireCriticalSequence(t, records, run)
	AssertEventsInOrder(t, records, testdata.GoldenPathExpectedEvents)
}

// TestResilience_UnsupportedFrameType covers the structured-but-unknown case.
func TestResilience_UnsupportedFrameType(t *testing.T) {
	h := NewHarness(t)
	user := h.NewUser(t)
	ws := h.OpenSocket(t, user)

	require.NoError(t, ws.SendRaw(context.Background(),
		[]byte(`{"type":"shutdown_everything","message":"please"}`)))

	errEvt, err := ws.WaitForEventType(events.TypeError, h.Config.ConnectTimeout)
	require.NoError(t, err)
	assert.Contains(t, errEvt.Field("message"), "unsupported")
}

// TestResilience_ReconnectAfterDrop injects a mid-run connection drop and
// verifies a fresh connection completes a run immediately afterwards.
func TestResilience_ReconnectAfterDrop(t *testing.T) {
	book := mockstaging.NewScriptBook()
	book.AddRouted("dropper", mockstaging.RunScript{
		Thinking:  []string{"about to vanish"},
		DropAfter: events.TypeAgentThinking,
	})

	h := NewHarness(t, WithScripts(book))
	h.RequireLocal(t, "connection drops are injected via the script book")

	user := h.NewUser(t)
	ws := h.OpenSocket(t, user)

	run := h.StartRun(t, ws, user, "dropper", "this run will be cut off")
	_, err := ws.WaitForRunEvent(events.TypeAgentThinking, run.ID, h.Config.ConnectTimeout)
	require.NoError(t, err)
	require.Eventually(t, ws.Closed, h.Config.ConnectTimeout, 25*time.Millisecond,
		"server should have dropped the connection")

	// The dropped run never completed.
	rep := events.Evaluate(ws.Events(), events.Options{})
	assert.Contains(t, rep.Missing, events.TypeAgentCompleted)

	// A fresh connection works right away.
	ws2 := h.OpenSocket(t, user)
	run2 := h.StartRun(t, ws2, user, "assistant", "still there?")
	h.RequireCriticalSequence(t, h.CollectRun(t, ws2, run2), run2)
}

// TestResilience_StalledRunReportsGapViolation injects a silent stall and
// verifies the validator reports it as a gap/missing-event failure — and the
// platform still serves the next request.
func TestResilience_StalledRunReportsGapViolation(t *testing.T) {
	book := mockstaging.NewScriptBook()
	book.AddRouted("staller", mockstaging.RunScript{
		Thinking:   []string{"going quiet now"},
		Tool:       "slow_tool",
		ToolArgs:   `{}`,
		StallAfter: events.TypeToolExecuting,
	})

	h := NewHarness(t, WithScripts(book), WithAgentTimeout(2*time.Second))
	h.RequireLocal(t, "stalls are injected via the script book")

	user := h.NewUser(t)
	ws := h.OpenSocket(t, user)

	run := h.StartRun(t, ws, user, "staller", "take your time")
	records := h.CollectRun(t, ws, run) // times out, stream never terminal

	rep := events.Evaluate(records, events.Options{})
	assert.False(t, rep.Passed())
	assert.Contains(t, rep.Missing, events.TypeToolCompleted)
	assert.Contains(t, rep.Missing, events.TypeAgentCompleted)

	ws2 := h.OpenSocket(t, user)
	run2 := h.StartRun(t, ws2, user, "assistant", "next request")
	h.RequireCriticalSequence(t, h.CollectRun(t, ws2, run2), run2)
}

// TestResilience_AgentErrorLeavesPlatformAvailable asserts an agent-side
// failure surfaces as an error event and does not degrade the deployment.
func TestResilience_AgentErrorLeavesPlatformAvailable(t *testing.T) {
	book := mockstaging.NewScriptBook()
	book.AddRouted("flaky", mockstaging.RunScript{
		ErrorMessage: "agent execution failed: upstream model unavailable",
	})

	h := NewHarness(t, WithScripts(book))
	h.RequireLocal(t, "agent errors are injected via the script book")

	user := h.NewUser(t)
	ws := h.OpenSocket(t, user)

	run := h.StartRun(t, ws, user, "flaky", "trigger a failure")
	errEvt, err := ws.WaitForRunEvent(events.TypeError, run.ID, h.Config.ConnectTimeout)
	require.NoError(t, err)
	assert.Contains(t, errEvt.Field("message"), "failed")

	// Health stays green and the same connection serves the next run.
	_, status, err := h.API("").Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	run2 := h.StartRun(t, ws, user, "assistant", "and now a normal run")
	h.RequireCriticalSequence(t, h.CollectRun(t, ws, run2), run2)
}

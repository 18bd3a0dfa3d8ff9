package mockstaging_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldenpath-ai/staging-e2e/pkg/authtest"
	"github.com/goldenpath-ai/staging-e2e/pkg/events"
	"github.com/goldenpath-ai/staging-e2e/pkg/httpapi"
	"github.com/goldenpath-ai/staging-e2e/pkg/mockstaging"
	"github.com/goldenpath-ai/staging-e2e/pkg/wsclient"
)

const testSecret = "mockstaging-test-secret"

func startServer(t *testing.T, opts ...mockstaging.Option) *mockstaging.Server {
	t.Helper()
	srv := mockstaging.New(testSecret, opts...)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func mintUser(t *testing.T) authtest.TestUser {
	t.Helper()
	user, err := authtest.NewMinter(testSecret).MintUser("mock")
	require.NoError(t, err)
	return user
}

func TestHealth(t *testing.T) {
	srv := startServer(t)

	body, status, err := httpapi.New(srv.BaseURL, "").Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "goldenpath-backend", body["service"])
}

func TestAuthValidate(t *testing.T) {
	srv := startServer(t)
	user := mintUser(t)

	t.Run("valid token", func(t *testing.T) {
		body, status, err := httpapi.New(srv.BaseURL, user.Token).ValidateToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, user.UserID, body["user_id"])
	})

	t.Run("missing token", func(t *testing.T) {
		body, status, err := httpapi.New(srv.BaseURL, "").ValidateToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Contains(t, body["error"], "unauthorized")
	})
}

func TestScriptedRun(t *testing.T) {
	book := mockstaging.NewScriptBook()
	book.AddRouted("cost_optimizer", mockstaging.RunScript{
		EventDelay: time.Millisecond,
		Thinking:   []string{"Checking compute spend.", "Comparing against last month."},
		Tool:       "billing_report",
		ToolArgs:   `{"months":2}`,
		ToolResult: `{"delta_usd":-1200}`,
		Response:   "Compute spend is down $1,200 month over month.",
	})
	srv := startServer(t, mockstaging.WithScripts(book))
	user := mintUser(t)

	ws, err := wsclient.Dial(context.Background(), srv.WSURL, wsclient.Options{Token: user.Token})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	require.NoError(t, ws.SendAgentRequest(context.Background(), wsclient.AgentRequest{
		Type:    "agent_request",
		Agent:   "cost_optimizer",
		Message: "How is compute spend trending?",
		RunID:   "run-scripted-1",
		UserID:  user.UserID,
	}))

	records, err := ws.CollectRun("run-scripted-1", 10*time.Second)
	require.NoError(t, err)

	rep := events.Evaluate(records, events.Options{RequireContent: true})
	assert.True(t, rep.Passed(), "violations: %v", rep.Violations())

	// Two scripted thinking steps, scripted tool and response.
	thinking := events.FilterByRun(ws.EventsByType(events.TypeAgentThinking), "run-scripted-1")
	assert.Len(t, thinking, 2)
	done, err := ws.WaitForRunEvent(events.TypeAgentCompleted, "run-scripted-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Compute spend is down $1,200 month over month.", done.DataField("response"))

	exec, err := ws.WaitForRunEvent(events.TypeToolExecuting, "run-scripted-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "billing_report", exec.DataField("tool"))
}

func TestSequentialScriptsPlayInOrder(t *testing.T) {
	book := mockstaging.NewScriptBook()
	book.AddSequential(mockstaging.RunScript{
		Thinking:   []string{"first in line"},
		Tool:       "lookup",
		ToolResult: `{"hit":1}`,
		Response:   "first scripted answer",
	})
	book.AddSequential(mockstaging.RunScript{
		Thinking:   []string{"second in line"},
		Tool:       "lookup",
		ToolResult: `{"hit":2}`,
		Response:   "second scripted answer",
	})
	srv := startServer(t, mockstaging.WithScripts(book))
	user := mintUser(t)

	ws, err := wsclient.Dial(context.Background(), srv.WSURL, wsclient.Options{Token: user.Token})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	// Different unrouted agents consume the sequential scripts in order.
	for i, want := range []string{"first scripted answer", "second scripted answer"} {
		runID := fmt.Sprintf("run-seq-%d", i)
		agent := fmt.Sprintf("agent-%d", i)
		require.NoError(t, ws.SendAgentRequest(context.Background(), wsclient.AgentRequest{
			Type: "agent_request", Agent: agent, Message: "next please", RunID: runID,
		}))
		records, err := ws.CollectRun(runID, 10*time.Second)
		require.NoError(t, err)
		require.NotEmpty(t, records)
		assert.Equal(t, want, records[len(records)-1].DataField("response"))
	}

	// With the sequential book exhausted, the default run plays.
	require.NoError(t, ws.SendAgentRequest(context.Background(), wsclient.AgentRequest{
		Type: "agent_request", Agent: "agent-3", Message: "anything left?", RunID: "run-seq-done",
	}))
	done, err := ws.WaitForRunEvent(events.TypeAgentCompleted, "run-seq-done", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, mockstaging.DefaultRunScript().Response, done.DataField("response"))
}

func TestDefaultRunWhenNothingScripted(t *testing.T) {
	srv := startServer(t)
	user := mintUser(t)

	ws, err := wsclient.Dial(context.Background(), srv.WSURL, wsclient.Options{Token: user.Token})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	require.NoError(t, ws.SendAgentRequest(context.Background(), wsclient.AgentRequest{
		Type:    "chat_message",
		Message: "hello",
		RunID:   "run-default-1",
	}))

	records, err := ws.CollectRun("run-default-1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, events.Evaluate(records, events.Options{RequireContent: true}).Passed())
}

func TestWSRejectsBadTokens(t *testing.T) {
	srv := startServer(t)

	t.Run("no token", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := wsclient.Dial(ctx, srv.WSURL, wsclient.Options{})
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		stale, err := authtest.NewMinter(testSecret).MintExpired("stale")
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err = wsclient.Dial(ctx, srv.WSURL, wsclient.Options{Token: stale.Token})
		assert.Error(t, err)
	})
}

func TestMalformedFrameKeepsConnectionUsable(t *testing.T) {
	srv := startServer(t)
	user := mintUser(t)

	ws, err := wsclient.Dial(context.Background(), srv.WSURL, wsclient.Options{Token: user.Token})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	require.NoError(t, ws.SendRaw(context.Background(), []byte(`{"type": "agent_request", broken`)))

	errEvt, err := ws.WaitForEventType(events.TypeError, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bad_request", errEvt.Field("code"))
	assert.Contains(t, errEvt.Field("message"), "malformed")

	// Same connection still serves a well-formed run.
	require.NoError(t, ws.SendAgentRequest(context.Background(), wsclient.AgentRequest{
		Type:    "agent_request",
		Agent:   "assistant",
		Message: "still alive?",
		RunID:   "run-after-error",
	}))
	records, err := ws.CollectRun("run-after-error", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, events.Evaluate(records, events.Options{}).Passed())
}

func TestChatHistoryIsPerUser(t *testing.T) {
	srv := startServer(t)
	alice := mintUser(t)
	bob := mintUser(t)

	ws, err := wsclient.Dial(context.Background(), srv.WSURL, wsclient.Options{Token: alice.Token})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	require.NoError(t, ws.SendAgentRequest(context.Background(), wsclient.AgentRequest{
		Type:     "agent_request",
		Agent:    "assistant",
		Message:  "remember this",
		RunID:    "run-history-1",
		ThreadID: "thread-history-1",
	}))
	_, err = ws.CollectRun("run-history-1", 10*time.Second)
	require.NoError(t, err)

	body, status, err := httpapi.New(srv.BaseURL, alice.Token).ChatHistory(context.Background(), "thread-history-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	first, _ := messages[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "remember this", first["content"])

	// Bob sees nothing in Alice's thread.
	body, status, err = httpapi.New(srv.BaseURL, bob.Token).ChatHistory(context.Background(), "thread-history-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["messages"])
}

func TestFailureInjection(t *testing.T) {
	t.Run("error script", func(t *testing.T) {
		book := mockstaging.NewScriptBook()
		book.AddRouted("flaky", mockstaging.RunScript{
			ErrorMessage: "agent execution failed: upstream model unavailable",
			ErrorCode:    "agent_error",
		})
		srv := startServer(t, mockstaging.WithScripts(book))
		user := mintUser(t)

		ws, err := wsclient.Dial(context.Background(), srv.WSURL, wsclient.Options{Token: user.Token})
		require.NoError(t, err)
		t.Cleanup(func() { _ = ws.Close() })

		require.NoError(t, ws.SendAgentRequest(context.Background(), wsclient.AgentRequest{
			Type: "agent_request", Agent: "flaky", Message: "boom", RunID: "run-err",
		}))
		errEvt, err := ws.WaitForRunEvent(events.TypeError, "run-err", 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "agent_error", errEvt.Field("code"))
	})

	t.Run("silent script", func(t *testing.T) {
		book := mockstaging.NewScriptBook()
		book.AddRouted("ghost", mockstaging.RunScript{Silent: true})
		srv := startServer(t, mockstaging.WithScripts(book))
		user := mintUser(t)

		ws, err := wsclient.Dial(context.Background(), srv.WSURL, wsclient.Options{Token: user.Token})
		require.NoError(t, err)
		t.Cleanup(func() { _ = ws.Close() })

		require.NoError(t, ws.SendAgentRequest(context.Background(), wsclient.AgentRequest{
			Type: "agent_request", Agent: "ghost", Message: "anyone home?", RunID: "run-ghost",
		}))

		records, err := ws.CollectRun("run-ghost", time.Second)
		require.Error(t, err, "a silent run must never reach a terminal event")
		assert.Empty(t, records)
		rep := events.Evaluate(records, events.Options{})
		assert.ElementsMatch(t, events.CriticalTypes(), rep.Missing)
	})

	t.Run("drop after started", func(t *testing.T) {
		book := mockstaging.NewScriptBook()
		book.AddRouted("dropper", mockstaging.RunScript{
			Thinking:  []string{"unreached"},
			DropAfter: events.TypeAgentStarted,
		})
		srv := startServer(t, mockstaging.WithScripts(book))
		user := mintUser(t)

		ws, err := wsclient.Dial(context.Background(), srv.WSURL, wsclient.Options{Token: user.Token})
		require.NoError(t, err)
		t.Cleanup(func() { _ = ws.Close() })

		require.NoError(t, ws.SendAgentRequest(context.Background(), wsclient.AgentRequest{
			Type: "agent_request", Agent: "dropper", Message: "go", RunID: "run-drop",
		}))

		_, err = ws.WaitForRunEvent(events.TypeAgentStarted, "run-drop", 5*time.Second)
		require.NoError(t, err)
		require.Eventually(t, ws.Closed, 5*time.Second, 25*time.Millisecond,
			"connection should be dropped after agent_started")
	})
}

// Package wsclient wraps the WebSocket connection the suites open against
// the Golden Path platform: authenticated dial, a background read loop that
// collects events, and predicate-based waits with caller-supplied timeouts.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/goldenpath-ai/staging-e2e/pkg/events"
	"github.com/goldenpath-ai/staging-e2e/pkg/version"
)

// AgentRequest is the JSON frame that starts an agent run.
type AgentRequest struct {
	Type     string         `json:"type"` // "agent_request" or "chat_message"
	Agent    string         `json:"agent"`
	Message  string         `json:"message"`
	ThreadID string         `json:"thread_id"`
	RunID    string         `json:"run_id"`
	UserID   string         `json:"user_id"`
	Context  map[string]any `json:"context,omitempty"`
}

// Options configures the dial.
type Options struct {
	// Token is sent as Authorization: Bearer <token>. Empty means no header,
	// which the negative suites rely on.
	Token string
	// RunID and ClientID are sent as X-* diagnostic headers so staging logs
	// can be correlated with a test run.
	RunID    string
	ClientID string
}

// Client collects events received over one WebSocket connection. Each test
// owns its client; events are never shared across connections.
type Client struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	records []events.Record
	ctx     context.Context
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// Dial connects and starts collecting events in a background goroutine.
func Dial(ctx context.Context, wsURL string, opts Options) (*Client, error) {
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	if opts.RunID != "" {
		header.Set("X-Test-Run", opts.RunID)
	}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = version.Full()
	}
	header.Set("X-Test-Client", clientID)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// SendAgentRequest writes an agent request frame.
func (c *Client) SendAgentRequest(ctx context.Context, req AgentRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// SendRaw writes an arbitrary frame. Used by the resilience suites to send
// malformed payloads.
func (c *Client) SendRaw(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// WaitForEvent waits until an event matching the predicate is received, or timeout.
func (c *Client) WaitForEvent(predicate func(events.Record) bool, timeout time.Duration) (*events.Record, error) {
	deadline := time.After(timeout)
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event (collected %d events)", len(c.Events()))
		case <-tick.C:
			c.mu.Lock()
			for i := range c.records {
				if predicate(c.records[i]) {
					rec := c.records[i]
					c.mu.Unlock()
					return &rec, nil
				}
			}
			c.mu.Unlock()
		}
	}
}

// WaitForEventType waits for an event with the given type.
func (c *Client) WaitForEventType(eventType string, timeout time.Duration) (*events.Record, error) {
	return c.WaitForEvent(func(r events.Record) bool {
		return r.Type == eventType
	}, timeout)
}

// WaitForRunEvent waits for an event of the given type belonging to runID.
func (c *Client) WaitForRunEvent(eventType, runID string, timeout time.Duration) (*events.Record, error) {
	return c.WaitForEvent(func(r events.Record) bool {
		return r.Type == eventType && r.RunID() == runID
	}, timeout)
}

// CollectUntil collects events until the predicate over the whole slice
// returns true or timeout. The collected snapshot is returned either way.
func (c *Client) CollectUntil(predicate func([]events.Record) bool, timeout time.Duration) ([]events.Record, error) {
	deadline := time.After(timeout)
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-deadline:
			return c.Events(), fmt.Errorf("timeout waiting for condition (collected %d events)", len(c.Events()))
		case <-tick.C:
			recs := c.Events()
			if predicate(recs) {
				return recs, nil
			}
		}
	}
}

// CollectRun collects until runID reaches a terminal event (agent_completed
// or error) and returns the run's events in arrival order.
func (c *Client) CollectRun(runID string, timeout time.Duration) ([]events.Record, error) {
	all, err := c.CollectUntil(func(recs []events.Record) bool {
		for _, r := range recs {
			if r.RunID() == runID && (r.Type == events.TypeAgentCompleted || r.Type == events.TypeError) {
				return true
			}
		}
		return false
	}, timeout)
	return events.FilterByRun(all, runID), err
}

// Events returns a snapshot of all collected events.
func (c *Client) Events() []events.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Record, len(c.records))
	copy(out, c.records)
	return out
}

// EventsByType returns collected events filtered by type.
func (c *Client) EventsByType(eventType string) []events.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Record
	for _, r := range c.records {
		if r.Type == eventType {
			out = append(out, r)
		}
	}
	return out
}

// Closed reports whether the background read loop has exited, i.e. the
// server or network dropped the connection.
func (c *Client) Closed() bool {
	select {
	case <-c.doneCh:
		return true
	default:
		return false
	}
}

// Close tears down the connection and waits for the read loop to exit.
func (c *Client) Close() error {
	c.cancel()
	_ = c.conn.CloseNow()
	<-c.doneCh
	return nil
}

// readLoop reads frames and appends parsed records. Malformed frames are
// skipped — the platform only ever sends JSON objects.
func (c *Client) readLoop() {
	defer close(c.doneCh)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return // connection closed or context cancelled
		}
		rec, ok := events.Parse(data, time.Now())
		if !ok {
			continue
		}
		c.mu.Lock()
		c.records = append(c.records, rec)
		c.mu.Unlock()
	}
}

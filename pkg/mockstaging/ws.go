package mockstaging

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/goldenpath-ai/staging-e2e/pkg/authtest"
	"github.com/goldenpath-ai/staging-e2e/pkg/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Test replica on loopback — origin checks don't apply.
	CheckOrigin: func(*http.Request) bool { return true },
}

// incomingFrame is the client → server message shape.
type incomingFrame struct {
	Type     string         `json:"type"`
	Agent    string         `json:"agent"`
	Message  string         `json:"message"`
	ThreadID string         `json:"thread_id"`
	RunID    string         `json:"run_id"`
	UserID   string         `json:"user_id"`
	Context  map[string]any `json:"context"`
}

// handleWS authenticates, upgrades, and serves one connection.
// Token validation happens before the upgrade so unauthorized clients get a
// plain 401, matching the staging load balancer's behavior.
func (s *Server) handleWS(c *gin.Context) {
	claims, err := s.minter.Verify(c.GetHeader("Authorization"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	sess := &wsSession{server: s, conn: conn, claims: claims}
	sess.readLoop()
}

// wsSession is one upgraded connection. Runs execute in their own goroutine
// so the read loop stays responsive; writeMu serializes frames.
type wsSession struct {
	server *Server
	conn   *websocket.Conn
	claims authtest.Claims

	writeMu sync.Mutex
}

func (sess *wsSession) readLoop() {
	defer func() { _ = sess.conn.Close() }()
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		sess.handleFrame(data)
	}
}

// handleFrame validates one incoming frame. Malformed or unsupported frames
// produce an error event and leave the connection usable.
func (sess *wsSession) handleFrame(data []byte) {
	var frame incomingFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		sess.writeError("", "bad_request", "malformed payload: invalid JSON")
		return
	}
	switch frame.Type {
	case "agent_request", "chat_message":
	default:
		sess.writeError(frame.RunID, "unsupported_type", "unsupported message type")
		return
	}
	if frame.Message == "" {
		sess.writeError(frame.RunID, "bad_request", "message required")
		return
	}

	if frame.RunID == "" {
		frame.RunID = uuid.NewString()
	}
	if frame.ThreadID == "" {
		frame.ThreadID = uuid.NewString()
	}
	if frame.Agent == "" {
		frame.Agent = "assistant"
	}

	go sess.runAgent(frame)
}

// runAgent plays the scripted run for one request. All emitted events carry
// the authenticated user's ID — never the one claimed in the frame — which is
// what the isolation suites verify.
func (sess *wsSession) runAgent(frame incomingFrame) {
	script := sess.server.scripts.next(frame.Agent)
	started := time.Now()

	if script.Silent {
		return
	}
	if script.StartDelay > 0 {
		time.Sleep(script.StartDelay)
	}

	if script.ErrorMessage != "" {
		code := script.ErrorCode
		if code == "" {
			code = "agent_error"
		}
		sess.writeError(frame.RunID, code, script.ErrorMessage)
		return
	}

	emit := func(eventType string, data map[string]any) bool {
		sess.writeEvent(eventType, frame, data)
		if script.DropAfter == eventType {
			_ = sess.conn.Close()
			return false
		}
		if script.StallAfter == eventType {
			return false
		}
		if script.EventDelay > 0 {
			time.Sleep(script.EventDelay)
		}
		return true
	}

	if !emit(events.TypeAgentStarted, nil) {
		return
	}
	for _, thought := range script.Thinking {
		if !emit(events.TypeAgentThinking, map[string]any{"thought": thought}) {
			return
		}
	}
	if script.Tool != "" {
		if !emit(events.TypeToolExecuting, map[string]any{
			"tool":      script.Tool,
			"arguments": script.ToolArgs,
		}) {
			return
		}
		if !emit(events.TypeToolCompleted, map[string]any{
			"tool":   script.Tool,
			"result": script.ToolResult,
		}) {
			return
		}
	}
	if !emit(events.TypeAgentCompleted, map[string]any{
		"response":    script.Response,
		"duration_ms": time.Since(started).Milliseconds(),
	}) {
		return
	}

	now := time.Now()
	sess.server.history.append(sess.claims.UserID, frame.ThreadID,
		HistoryEntry{Role: "user", Content: frame.Message, RunID: frame.RunID, Timestamp: started},
		HistoryEntry{Role: "assistant", Content: script.Response, RunID: frame.RunID, Timestamp: now},
	)
}

func (sess *wsSession) writeEvent(eventType string, frame incomingFrame, data map[string]any) {
	payload := map[string]any{
		"type":      eventType,
		"run_id":    frame.RunID,
		"thread_id": frame.ThreadID,
		"user_id":   sess.claims.UserID,
		"agent":     frame.Agent,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if data != nil {
		payload["data"] = data
	}
	sess.write(payload)
}

func (sess *wsSession) writeError(runID, code, message string) {
	payload := map[string]any{
		"type":    events.TypeError,
		"code":    code,
		"message": message,
		"user_id": sess.claims.UserID,
	}
	if runID != "" {
		payload["run_id"] = runID
	}
	sess.write(payload)
}

func (sess *wsSession) write(payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_ = sess.conn.WriteMessage(websocket.TextMessage, data)
}

// Package events models the WebSocket events emitted by the Golden Path
// platform during an agent run and provides the sequence validator used by
// every suite in this repository.
package events

import (
	"encoding/json"
	"time"
)

// Critical event types. A successful agent interaction must surface all five,
// in this relative order.
const (
	TypeAgentStarted   = "agent_started"
	TypeAgentThinking  = "agent_thinking"
	TypeToolExecuting  = "tool_executing"
	TypeToolCompleted  = "tool_completed"
	TypeAgentCompleted = "agent_completed"

	// TypeError is the error variant emitted in place of a normal run event.
	TypeError = "error"
)

// CriticalTypes lists the five mandated event types in expected order.
func CriticalTypes() []string {
	return []string{
		TypeAgentStarted,
		TypeAgentThinking,
		TypeToolExecuting,
		TypeToolCompleted,
		TypeAgentCompleted,
	}
}

// Record is one received WebSocket event. Records live only for the duration
// of a single test and are owned by the connection that received them.
type Record struct {
	Type     string
	Received time.Time
	Payload  map[string]any  // parsed for assertions
	Raw      json.RawMessage // original frame
}

// Parse decodes a raw WebSocket frame into a Record. Returns ok=false for
// frames that are not JSON objects — callers skip those.
func Parse(data []byte, received time.Time) (Record, bool) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Record{}, false
	}
	rec := Record{
		Received: received,
		Payload:  payload,
		Raw:      json.RawMessage(data),
	}
	if t, ok := payload["type"].(string); ok {
		rec.Type = t
	}
	return rec, true
}

// Field returns a top-level string field from the payload ("" if absent).
func (r Record) Field(key string) string {
	s, _ := r.Payload[key].(string)
	return s
}

// DataField returns a string field nested under "data" ("" if absent).
func (r Record) DataField(key string) string {
	data, ok := r.Payload["data"].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := data[key].(string)
	return s
}

// RunID returns the run_id the event belongs to.
func (r Record) RunID() string { return r.Field("run_id") }

// UserID returns the user_id the event was emitted for.
func (r Record) UserID() string { return r.Field("user_id") }

// ThreadID returns the thread_id the event belongs to.
func (r Record) ThreadID() string { return r.Field("thread_id") }

// IsCritical reports whether the record is one of the five critical types.
func (r Record) IsCritical() bool {
	switch r.Type {
	case TypeAgentStarted, TypeAgentThinking, TypeToolExecuting,
		TypeToolCompleted, TypeAgentCompleted:
		return true
	}
	return false
}

// FilterByRun returns the records belonging to the given run_id.
func FilterByRun(records []Record, runID string) []Record {
	var out []Record
	for _, r := range records {
		if r.RunID() == runID {
			out = append(out, r)
		}
	}
	return out
}

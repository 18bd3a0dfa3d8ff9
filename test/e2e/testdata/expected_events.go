// Package testdata defines expected WebSocket event sequences for the e2e
// suites.
//
// Events are verified with structural assertions, not exact transcripts:
// agents legitimately emit extra thinking/tool iterations, so
// AssertEventsInOrder only requires each expected event to appear in the
// correct relative order, tolerating extras in between.
package testdata

// ExpectedEvent is one expected WebSocket event for structural matching.
// Only non-empty fields are matched against actual events.
type ExpectedEvent struct {
	Type     string // required: "agent_started", "tool_executing", ...
	Tool     string // optional: match data.tool if non-empty
	Contains string // optional: substring match on data.response / data.thought / message
}

// GoldenPathExpectedEvents is the critical sequence every successful agent
// interaction must surface, in order.
var GoldenPathExpectedEvents = []ExpectedEvent{
	{Type: "agent_started"},
	{Type: "agent_thinking"},
	{Type: "tool_executing"},
	{Type: "tool_completed"},
	{Type: "agent_completed"},
}

// ScriptedCostRunExpectedEvents pins the content of the cost-analysis run
// the local replica scripts for the golden-path suite.
var ScriptedCostRunExpectedEvents = []ExpectedEvent{
	{Type: "agent_started"},
	{Type: "agent_thinking", Contains: "cost drivers"},
	{Type: "tool_executing", Tool: "cost_analyzer"},
	{Type: "tool_completed", Tool: "cost_analyzer"},
	{Type: "agent_completed", Contains: "18%"},
}

package mockstaging

import (
	"sync"
	"time"
)

// RunScript defines how one scripted agent run plays out on the wire.
// The zero value is not useful — start from DefaultRunScript or fill in the
// content fields explicitly.
type RunScript struct {
	// Timing.
	StartDelay time.Duration // before agent_started
	EventDelay time.Duration // between consecutive events

	// Run content.
	Thinking   []string // one agent_thinking event per entry
	Tool       string
	ToolArgs   string
	ToolResult string
	Response   string // agent_completed data.response

	// Failure injection.
	ErrorMessage string // non-empty: emit an error event instead of running
	ErrorCode    string
	Silent       bool   // emit nothing, as if the run was never picked up
	StallAfter   string // stop emitting after this event type, connection stays open
	DropAfter    string // close the connection right after this event type
}

// DefaultRunScript is the generic happy-path run used when nothing was
// scripted for an agent.
func DefaultRunScript() RunScript {
	return RunScript{
		EventDelay: 5 * time.Millisecond,
		Thinking:   []string{"Reviewing the request and gathering context."},
		Tool:       "cost_analyzer",
		ToolArgs:   `{"window":"30d"}`,
		ToolResult: `{"total_spend_usd":48210.55,"top_service":"compute"}`,
		Response:   "Analysis complete: projected spend can be reduced by 18% across 3 services.",
	}
}

// ScriptBook holds scripted runs with dual dispatch: per-agent routes for
// suites that differentiate agents, plus a sequential fallback consumed in
// order. When both are exhausted the default run plays.
type ScriptBook struct {
	mu         sync.Mutex
	sequential []RunScript
	seqIdx     int
	routes     map[string][]RunScript
	routeIdx   map[string]int
}

// NewScriptBook creates an empty script book.
func NewScriptBook() *ScriptBook {
	return &ScriptBook{
		routes:   make(map[string][]RunScript),
		routeIdx: make(map[string]int),
	}
}

// AddSequential appends a run consumed in order for any agent without a route.
func (b *ScriptBook) AddSequential(script RunScript) *ScriptBook {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sequential = append(b.sequential, script)
	return b
}

// AddRouted appends a run for a specific agent name.
func (b *ScriptBook) AddRouted(agent string, script RunScript) *ScriptBook {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[agent] = append(b.routes[agent], script)
	return b
}

// next pops the run to play for the given agent.
func (b *ScriptBook) next(agent string) RunScript {
	b.mu.Lock()
	defer b.mu.Unlock()

	if scripts := b.routes[agent]; b.routeIdx[agent] < len(scripts) {
		script := scripts[b.routeIdx[agent]]
		b.routeIdx[agent]++
		return script
	}
	if b.seqIdx < len(b.sequential) {
		script := b.sequential[b.seqIdx]
		b.seqIdx++
		return script
	}
	return DefaultRunScript()
}

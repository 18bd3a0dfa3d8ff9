package events

import (
	"fmt"
	"time"
)

// Options bounds the checks applied to an event sequence. Zero-value duration
// fields disable the corresponding timing check.
type Options struct {
	// Required event types. Defaults to CriticalTypes when empty.
	Required []string

	// Start is the moment the request was sent. When set together with
	// MaxInitialDelay, the first event must arrive within that budget.
	Start           time.Time
	MaxInitialDelay time.Duration

	// MaxGap is the largest acceptable silence between consecutive events.
	MaxGap time.Duration

	// RequireContent demands a non-empty data.response on agent_completed.
	RequireContent bool
}

// Report is the outcome of validating one event sequence. A stream that ended
// before reaching the required state shows up as missing events, never as an
// error.
type Report struct {
	Missing           []string
	OrderViolations   []string
	GapViolations     []string
	PayloadViolations []string
}

// Passed reports whether no expectation was violated.
func (r Report) Passed() bool {
	return len(r.Missing) == 0 &&
		len(r.OrderViolations) == 0 &&
		len(r.GapViolations) == 0 &&
		len(r.PayloadViolations) == 0
}

// Violations flattens the report into human-readable expectation failures.
func (r Report) Violations() []string {
	var out []string
	for _, m := range r.Missing {
		out = append(out, "missing event: "+m)
	}
	out = append(out, r.OrderViolations...)
	out = append(out, r.GapViolations...)
	out = append(out, r.PayloadViolations...)
	return out
}

// Tracker accumulates events from a single receive loop and validates them on
// demand. It has no concurrency control of its own — the caller's loop drives
// it, matching how the suites consume WebSocket streams.
type Tracker struct {
	opts    Options
	records []Record
}

// NewTracker creates a tracker. Set opts.Start before the request goes out if
// MaxInitialDelay should be enforced.
func NewTracker(opts Options) *Tracker {
	return &Tracker{opts: opts}
}

// Observe appends one received event.
func (t *Tracker) Observe(rec Record) {
	t.records = append(t.records, rec)
}

// Records returns the accumulated events in arrival order.
func (t *Tracker) Records() []Record {
	return t.records
}

// Report validates everything observed so far.
func (t *Tracker) Report() Report {
	return Evaluate(t.records, t.opts)
}

// Evaluate answers the three questions every suite asks of a finished stream:
// were the required events all observed, did they arrive in a sane order, and
// were the timing gaps within bounds. Extra and repeated events are tolerated
// — agents legitimately emit several thinking/tool pairs per run.
func Evaluate(records []Record, opts Options) Report {
	required := opts.Required
	if len(required) == 0 {
		required = CriticalTypes()
	}

	var rep Report

	// First / last occurrence index per type.
	first := make(map[string]int)
	last := make(map[string]int)
	for i, r := range records {
		if _, seen := first[r.Type]; !seen {
			first[r.Type] = i
		}
		last[r.Type] = i
	}

	for _, want := range required {
		if _, ok := first[want]; !ok {
			rep.Missing = append(rep.Missing, want)
		}
	}

	rep.OrderViolations = orderViolations(records, first, last)
	rep.GapViolations = gapViolations(records, opts)

	if opts.RequireContent {
		if i, ok := last[TypeAgentCompleted]; ok {
			if records[i].DataField("response") == "" {
				rep.PayloadViolations = append(rep.PayloadViolations,
					"agent_completed carries no response content")
			}
		}
	}

	return rep
}

// orderViolations checks the relative order of whichever critical events were
// observed. Missing events are reported separately, not double-counted here.
func orderViolations(records []Record, first, last map[string]int) []string {
	var out []string

	startIdx, hasStart := first[TypeAgentStarted]
	doneIdx, hasDone := last[TypeAgentCompleted]

	if hasStart {
		for i, r := range records {
			if i < startIdx && r.IsCritical() {
				out = append(out, fmt.Sprintf(
					"%s observed at position %d before agent_started", r.Type, i))
			}
		}
	}
	if hasDone {
		for i, r := range records {
			if i > doneIdx && r.IsCritical() {
				out = append(out, fmt.Sprintf(
					"%s observed at position %d after agent_completed", r.Type, i))
			}
		}
	}
	if hasStart && hasDone && doneIdx < startIdx {
		out = append(out, "agent_completed observed before agent_started")
	}
	if execIdx, ok := first[TypeToolExecuting]; ok {
		if complIdx, ok := first[TypeToolCompleted]; ok && complIdx < execIdx {
			out = append(out, "tool_completed observed before tool_executing")
		}
	}

	return out
}

func gapViolations(records []Record, opts Options) []string {
	var out []string

	if opts.MaxInitialDelay > 0 && !opts.Start.IsZero() && len(records) > 0 {
		if delay := records[0].Received.Sub(opts.Start); delay > opts.MaxInitialDelay {
			out = append(out, fmt.Sprintf(
				"first event (%s) arrived after %s, budget %s",
				records[0].Type, delay.Round(time.Millisecond), opts.MaxInitialDelay))
		}
	}

	if opts.MaxGap > 0 {
		for i := 1; i < len(records); i++ {
			gap := records[i].Received.Sub(records[i-1].Received)
			if gap > opts.MaxGap {
				out = append(out, fmt.Sprintf(
					"%s gap between %s and %s exceeds budget %s",
					gap.Round(time.Millisecond), records[i-1].Type, records[i].Type, opts.MaxGap))
			}
		}
	}

	return out
}

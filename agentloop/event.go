// Package agentloop implements the iterative tool-calling control loop
// (spec §4.1): AgentCoordinator, AgenticLoop, ExecutionContext, and the
// typed streaming event set. Grounded on the teacher's pkg/agent/agent.go
// Run(ctx) iter.Seq2[*Event, error] pattern and pkg/agent/event.go's Event
// struct, generalized from the teacher's A2A-message-carrying Event into a
// closed set of typed streaming events this spec names explicitly.
package agentloop

import (
	"time"

	"github.com/google/uuid"
)

// EventKind is one of the typed streaming events spec §4.1 names.
type EventKind string

const (
	EventResponseCreated EventKind = "response:created"
	EventTextDelta       EventKind = "text:delta"
	EventTextDone        EventKind = "text:done"
	EventReasoningDelta  EventKind = "reasoning:delta"
	EventReasoningDone   EventKind = "reasoning:done"
	EventToolCallStart   EventKind = "tool:call-start"
	EventToolArgsDelta   EventKind = "tool:args-delta"
	EventToolArgsDone    EventKind = "tool:args-done"
	EventToolExecStart   EventKind = "tool:exec-start"
	EventToolExecDone    EventKind = "tool:exec-done"
	EventIterationDone   EventKind = "iteration:complete"
	EventResponseDone    EventKind = "response:complete"
	EventError           EventKind = "error"
)

// Event is one item in the loop's streaming output.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Iteration int

	TextDelta      string
	ReasoningDelta string

	ToolCallID   string
	ToolName     string
	ToolArgs     string // accumulated/partial JSON for args-delta/args-done
	ToolResult   string
	ToolIsError  bool

	FinalText string
	Err       error
}

func newEvent(kind EventKind, iteration int) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Iteration: iteration}
}

// backfillToolCallID assigns a synthetic ID to a tool call the provider
// didn't ID itself (spec §4.1: "tool calls without a provider-supplied ID
// are backfilled with agentloop-<uuid>").
func backfillToolCallID(provided string) string {
	if provided != "" {
		return provided
	}
	return "agentloop-" + uuid.NewString()
}

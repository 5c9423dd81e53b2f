package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	agctx "github.com/kadirpekel/agentloop/context"
	"github.com/kadirpekel/agentloop/conversation"
	"github.com/kadirpekel/agentloop/errs"
	"github.com/kadirpekel/agentloop/hook"
	"github.com/kadirpekel/agentloop/observability"
	"github.com/kadirpekel/agentloop/permission"
	"github.com/kadirpekel/agentloop/provider"
	"github.com/kadirpekel/agentloop/tool"
	"github.com/kadirpekel/agentloop/toolmanager"
)

// Loop is the AgenticLoop: the iterative request-parse-execute-append
// state machine from spec §4.1. Grounded on the teacher's
// pkg/agent/agent.go Run(ctx) iter.Seq2[*Event, error] streaming pattern
// and pkg/agent/llmagent/flow.go's before/after-model and before/after-tool
// callback ordering, generalized into the named hook points in the hook
// package and the explicit 10-step tool pipeline in toolmanager.
type Loop struct {
	Tools      *toolmanager.Manager
	Permission *permission.Manager
	Approve    permission.ApprovalCallback
	Context    *agctx.Manager
	Provider   provider.Port
	Hooks      *hook.Manager
	Metrics    *observability.Metrics
	Bounds     Bounds
	ErrorHandling ErrorHandling
}

// Run executes the loop, streaming typed events until the run reaches a
// terminal state. The returned iterator's error half carries fatal,
// non-recoverable loop errors (bound exceeded, cancellation, assembly
// failure); tool-level failures are reported as tool:exec-done events
// with ToolIsError set, not as iterator errors, so the loop can continue.
func (l *Loop) Run(parentCtx context.Context, ec *ExecutionContext, userInput string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if err := ec.Start(); err != nil {
			yield(Event{}, err)
			return
		}

		if userInput != "" {
			l.Context.AppendItem(conversation.TextMessage(conversation.RoleUser, userInput))
		}

		for {
			if ec.cancelled() {
				ec.finish(StateCancelled)
				ec.audit("run:cancelled", nil)
				yield(Event{}, errCancelled())
				return
			}
			if paused, reason := ec.pausing(); paused {
				ec.finish(StatePaused)
				ec.audit("run:paused", map[string]any{"reason": reason})
				yield(newEvent(EventIterationDone, ec.iteration), nil)
				return
			}
			if err := ec.checkBounds(); err != nil {
				ec.finish(StateFailed)
				yield(Event{}, err)
				return
			}

			iteration := ec.beginIteration()
			ec.audit("iteration:begin", map[string]any{"iteration": iteration})

			if l.Hooks != nil {
				if err := l.Hooks.Run(parentCtx, hook.BeforeIteration, ec); err != nil {
					ec.finish(StateFailed)
					yield(Event{}, err)
					return
				}
			}

			done, err := l.runIteration(parentCtx, ec, iteration, yield)
			if err != nil {
				ec.finish(StateFailed)
				yield(Event{}, err)
				return
			}

			if l.Hooks != nil {
				if err := l.Hooks.Run(parentCtx, hook.AfterIteration, ec); err != nil {
					ec.finish(StateFailed)
					yield(Event{}, err)
					return
				}
			}

			ec.audit("iteration:done", map[string]any{"iteration": iteration})
			ev := newEvent(EventIterationDone, iteration)
			if !yield(ev, nil) {
				return
			}

			if done {
				ec.finish(StateComplete)
				ec.audit("run:complete", map[string]any{"iterations": iteration})
				yield(newEvent(EventResponseDone, iteration), nil)
				return
			}
		}
	}
}

// runIteration implements one pass of spec §4.2/§4.4: assemble context
// (compacting if needed), call the provider, execute any requested tools,
// append results. Returns done=true when the model produced a final
// response with no further tool calls.
//
// If the previous iteration was paused mid-batch awaiting a tool approval
// (spec §4.3/§9's HITL long-running approval case), the conversation holds
// ToolUse blocks with no matching ToolResult; runIteration resumes by
// re-executing exactly those calls instead of asking the provider for a
// fresh turn, so a PAUSED run behaves identically to never having paused.
func (l *Loop) runIteration(parentCtx context.Context, ec *ExecutionContext, iteration int, yield func(Event, error) bool) (bool, error) {
	if pending := conversation.PendingToolUses(l.Context.Items()); len(pending) > 0 {
		calls := make([]tool.Call, 0, len(pending))
		for _, c := range pending {
			calls = append(calls, tool.Call{ID: c.ToolUseID, Name: c.ToolName, RawArgs: c.ToolArgsJSON, Arguments: c.ToolArgs})
		}
		return l.executeTools(parentCtx, ec, iteration, calls, yield)
	}

	statsBefore := l.Context.Stats()
	if statsBefore.NeedsReduction && l.Hooks != nil {
		if err := l.Hooks.Run(parentCtx, hook.BeforeCompact, ec); err != nil {
			return false, err
		}
	}

	assembled, err := l.Context.Assemble()
	if err != nil {
		return false, err
	}
	ec.setTokens(assembled.TotalTokens)
	if l.Metrics != nil {
		l.Metrics.SetContextUtilization(l.Context.Stats().Utilization)
	}

	if statsBefore.NeedsReduction {
		ec.recordCompaction()
		ec.audit("compact:done", map[string]any{"tokens_before": statsBefore.TokenCount, "tokens_after": assembled.TotalTokens})
		if l.Metrics != nil {
			l.Metrics.RecordCompaction("assemble", 0)
		}
		if l.Hooks != nil {
			if err := l.Hooks.Run(parentCtx, hook.AfterCompact, ec); err != nil {
				return false, err
			}
		}
	}

	req := provider.Request{
		System: assembled.SystemInstructions,
		Items:  assembled.Items,
		Tools:  l.Tools.Descriptors(),
	}

	start := time.Now()
	resp, err := l.Provider.Generate(parentCtx, req)
	if l.Metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		l.Metrics.RecordIteration(outcome, time.Since(start))
	}
	if err != nil {
		return false, err
	}

	if !yield(newEvent(EventResponseCreated, iteration), nil) {
		return true, nil
	}
	if resp.Text != "" {
		ev := newEvent(EventTextDelta, iteration)
		ev.TextDelta = resp.Text
		if !yield(ev, nil) {
			return true, nil
		}
		done := newEvent(EventTextDone, iteration)
		done.FinalText = resp.Text
		yield(done, nil)
	}

	if len(resp.ToolCalls) == 0 {
		l.Context.AppendItem(conversation.TextMessage(conversation.RoleAssistant, resp.Text))
		return true, nil
	}

	var contents []conversation.Content
	if resp.Text != "" {
		contents = append(contents, conversation.Content{Kind: conversation.ContentOutputText, Text: resp.Text})
	}
	calls := make([]tool.Call, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		id := backfillToolCallID(tc.ID)
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.ArgsJSON), &args)
		contents = append(contents, conversation.ToolUse(id, tc.ToolName, tc.ArgsJSON, args))
		calls = append(calls, tool.Call{ID: id, Name: tc.ToolName, RawArgs: tc.ArgsJSON, Arguments: args})
	}
	l.Context.AppendItem(conversation.NewMessage(conversation.RoleAssistant, contents...))

	return l.executeTools(parentCtx, ec, iteration, calls, yield)
}

// executeTools fans the batch out to ToolManager.ExecuteBatch, which runs
// every call concurrently (bounded by each tool's own concurrency admission)
// and fans back in an ordered result slice (spec §4.1 step 7, §5: "fans out
// concurrent tool executions per iteration and fans in by collecting ordered
// results"). Results are then processed in call order, appending a
// ToolResult item per completed call. A call whose approval is still
// pending (errs.KindApprovalPending) parks the run in StatePaused without
// appending a result, leaving it and any calls after it in the batch
// unpaired for runIteration to pick back up on resume. A call whose tool has
// now failed ErrorHandling.MaxConsecutiveErrors times in a row, or any
// failure when ErrorHandling.ToolFailureMode is "fail", aborts the run.
func (l *Loop) executeTools(parentCtx context.Context, ec *ExecutionContext, iteration int, calls []tool.Call, yield func(Event, error) bool) (bool, error) {
	errHandling := l.ErrorHandling.effective()

	for i := range calls {
		call := &calls[i]
		ec.audit("tool:call-start", map[string]any{"tool": call.Name, "id": call.ID})
		ev := newEvent(EventToolCallStart, iteration)
		ev.ToolCallID, ev.ToolName = call.ID, call.Name
		if !yield(ev, nil) {
			return true, nil
		}

		if l.Hooks != nil {
			if err := l.Hooks.Run(parentCtx, hook.BeforeTool, call); err != nil {
				return false, err
			}
		}

		execStart := newEvent(EventToolExecStart, iteration)
		execStart.ToolCallID, execStart.ToolName = call.ID, call.Name
		if !yield(execStart, nil) {
			return true, nil
		}
	}

	results := l.Tools.ExecuteBatch(parentCtx, calls, l.Permission, l.Approve)

	for i, call := range calls {
		result := results[i]

		if result.ErrKind == string(errs.KindApprovalPending) {
			ec.audit("tool:approval-pending", map[string]any{"tool": call.Name, "id": call.ID})
			ec.Pause(fmt.Sprintf("tool %q is awaiting approval", call.Name))
			return false, nil
		}

		isError := !result.OK
		ec.recordToolCall(isError)
		exceeded := ec.recordToolOutcome(call.Name, isError, errHandling.MaxConsecutiveErrors)
		if l.Metrics != nil {
			outcome := "ok"
			if isError {
				outcome = "error"
			}
			l.Metrics.RecordToolCall(call.Name, outcome, time.Duration(result.DurationMS)*time.Millisecond)
		}

		if l.Hooks != nil {
			_ = l.Hooks.Run(parentCtx, hook.AfterTool, &result)
		}

		ec.audit("tool:exec-done", map[string]any{"tool": call.Name, "id": call.ID, "ok": !isError, "duration_ms": result.DurationMS})
		resultText := resultToText(result)
		doneEv := newEvent(EventToolExecDone, iteration)
		doneEv.ToolCallID, doneEv.ToolName = call.ID, call.Name
		doneEv.ToolResult, doneEv.ToolIsError = resultText, isError
		if !yield(doneEv, nil) {
			return true, nil
		}

		l.Context.AppendItem(conversation.NewMessage(conversation.RoleTool,
			conversation.ToolResult(call.ID, resultText, isError, result.Images...)))

		if isError && exceeded {
			return false, errMaxConsecutiveToolErrors(call.Name, errHandling.MaxConsecutiveErrors)
		}
		if isError && errHandling.ToolFailureMode == ToolFailureFail {
			return false, errs.New(errs.KindToolExecutionError, fmt.Sprintf("tool %q failed and tool-failure-mode is fail", call.Name))
		}
	}

	return false, nil
}

// resultToText renders a tool.Result's payload as text for the
// conversation and the ToolExecDone event: the error message when the call
// failed, or a compact JSON encoding of its value.
func resultToText(r tool.Result) string {
	if !r.OK {
		return r.ErrMessage
	}
	b, err := json.Marshal(r.Value)
	if err != nil {
		return ""
	}
	return string(b)
}

package agentloop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentloop/agentloop"
	agctx "github.com/kadirpekel/agentloop/context"
	"github.com/kadirpekel/agentloop/permission"
	"github.com/kadirpekel/agentloop/provider"
	"github.com/kadirpekel/agentloop/tool"
	"github.com/kadirpekel/agentloop/toolmanager"
)

// echoTool is a minimal tool.Callable used across the scenarios below: it
// either echoes its args back, or blocks until its context is cancelled.
type echoTool struct {
	descriptor tool.Descriptor
	blocking   bool
}

func (t *echoTool) Descriptor() tool.Descriptor { return t.descriptor }

func (t *echoTool) Call(ctx *tool.ExecContext, args map[string]any) (map[string]any, error) {
	if t.blocking {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return map[string]any{"echo": args}, nil
}

func newCoordinator(t *testing.T, mockResponses []provider.Response, toolCfg func(*toolmanager.Manager)) *agentloop.Coordinator {
	t.Helper()
	mock := provider.NewMock(mockResponses...)
	coord, err := agentloop.New(agentloop.CoordinatorConfig{
		Provider: mock,
		Budget:   agctx.Budget{ModelContextLimit: 8000, ReservedOutput: 1000},
		Bounds:   agentloop.Bounds{MaxIterations: 10},
		AutoApproveIfNoCallback: true,
	})
	require.NoError(t, err)
	if toolCfg != nil {
		toolCfg(coord.Loop.Tools)
	}
	return coord
}

func drain(t *testing.T, coord *agentloop.Coordinator, ctx context.Context, input string) ([]agentloop.Event, error) {
	t.Helper()
	var events []agentloop.Event
	for ev, err := range coord.Stream(ctx, "", input) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestSingleShotResponse(t *testing.T) {
	coord := newCoordinator(t, []provider.Response{{Text: "hello there", StopReason: "end_turn"}}, nil)

	events, err := drain(t, coord, context.Background(), "hi")
	require.NoError(t, err)

	var gotDone bool
	for _, ev := range events {
		if ev.Kind == agentloop.EventResponseDone {
			gotDone = true
		}
	}
	require.True(t, gotDone, "expected a response:complete event")
}

func TestRunDrainsStreamIntoTerminalResponse(t *testing.T) {
	coord := newCoordinator(t, []provider.Response{{Text: "hello there", StopReason: "end_turn"}}, nil)

	resp, err := coord.Run(context.Background(), "", "hi")
	require.NoError(t, err)
	require.Equal(t, "hello there", resp.Text)
	require.Equal(t, agentloop.StateComplete, resp.State)
	require.Equal(t, 1, resp.Iterations)
}

func TestOneToolOneIteration(t *testing.T) {
	coord := newCoordinator(t, []provider.Response{
		{ToolCalls: []provider.ToolCallRequest{{ID: "call-1", ToolName: "echo", ArgsJSON: `{"x":1}`}}, StopReason: "tool_use"},
		{Text: "done", StopReason: "end_turn"},
	}, func(tm *toolmanager.Manager) {
		_, err := tm.Register(&echoTool{descriptor: tool.Descriptor{Name: "echo"}}, toolmanager.RegisterOpts{})
		require.NoError(t, err)
	})

	events, err := drain(t, coord, context.Background(), "use the echo tool")
	require.NoError(t, err)

	var toolDone, responseDone bool
	for _, ev := range events {
		if ev.Kind == agentloop.EventToolExecDone {
			toolDone = true
			require.False(t, ev.ToolIsError)
		}
		if ev.Kind == agentloop.EventResponseDone {
			responseDone = true
		}
	}
	require.True(t, toolDone)
	require.True(t, responseDone)
}

func TestBlockedToolScopeNever(t *testing.T) {
	mock := provider.NewMock(
		provider.Response{ToolCalls: []provider.ToolCallRequest{{ID: "call-1", ToolName: "danger", ArgsJSON: `{}`}}, StopReason: "tool_use"},
		provider.Response{Text: "acknowledged", StopReason: "end_turn"},
	)
	coord, err := agentloop.New(agentloop.CoordinatorConfig{
		Provider:     mock,
		Budget:       agctx.Budget{ModelContextLimit: 8000, ReservedOutput: 1000},
		Bounds:       agentloop.Bounds{MaxIterations: 10},
		DefaultScope: tool.ScopeNever,
	})
	require.NoError(t, err)
	_, rerr := coord.Loop.Tools.Register(&echoTool{descriptor: tool.Descriptor{Name: "danger"}}, toolmanager.RegisterOpts{})
	require.NoError(t, rerr)

	events, err := drain(t, coord, context.Background(), "do the dangerous thing")
	require.NoError(t, err)

	var blocked bool
	for _, ev := range events {
		if ev.Kind == agentloop.EventToolExecDone && ev.ToolIsError {
			blocked = true
		}
	}
	require.True(t, blocked, "expected the never-scoped tool call to come back as an error")
}

func TestHITLPauseAndResume(t *testing.T) {
	mock := provider.NewMock(
		provider.Response{ToolCalls: []provider.ToolCallRequest{{ID: "call-1", ToolName: "sensitive", ArgsJSON: `{}`}}, StopReason: "tool_use"},
		provider.Response{Text: "all set", StopReason: "end_turn"},
	)
	var approve permission.ApprovalCallback = func(req permission.ApprovalRequest) (permission.ApprovalDecision, error) {
		return permission.ApprovalDecision{}, permission.ErrApprovalPending
	}
	coord, err := agentloop.New(agentloop.CoordinatorConfig{
		Provider: mock,
		Budget:   agctx.Budget{ModelContextLimit: 8000, ReservedOutput: 1000},
		Bounds:   agentloop.Bounds{MaxIterations: 10},
		Approve:  approve,
	})
	require.NoError(t, err)
	_, rerr := coord.Loop.Tools.Register(&echoTool{descriptor: tool.Descriptor{Name: "sensitive"}}, toolmanager.RegisterOpts{})
	require.NoError(t, rerr)

	events, err := drain(t, coord, context.Background(), "do the sensitive thing")
	require.NoError(t, err)

	var sawToolExecDone bool
	for _, ev := range events {
		if ev.Kind == agentloop.EventToolExecDone {
			sawToolExecDone = true
		}
	}
	require.False(t, sawToolExecDone, "a pending approval must not produce a tool:exec-done event")

	// Resume: the approval callback now approves, and PendingToolUses
	// should let runIteration re-execute the parked call instead of asking
	// the provider again.
	coord.Loop.Approve = func(req permission.ApprovalRequest) (permission.ApprovalDecision, error) {
		return permission.ApprovalDecision{Approved: true}, nil
	}
	events, err = drain(t, coord, context.Background(), "")
	require.NoError(t, err)

	var resumedToolDone, responseDone bool
	for _, ev := range events {
		if ev.Kind == agentloop.EventToolExecDone && !ev.ToolIsError {
			resumedToolDone = true
		}
		if ev.Kind == agentloop.EventResponseDone {
			responseDone = true
		}
	}
	require.True(t, resumedToolDone, "resuming should execute the parked tool call")
	require.True(t, responseDone)
}

func TestCancellationMidTool(t *testing.T) {
	coord := newCoordinator(t, []provider.Response{
		{ToolCalls: []provider.ToolCallRequest{{ID: "call-1", ToolName: "blocker", ArgsJSON: `{}`}}, StopReason: "tool_use"},
		{Text: "never reached in practice", StopReason: "end_turn"},
	}, func(tm *toolmanager.Manager) {
		_, err := tm.Register(&echoTool{descriptor: tool.Descriptor{Name: "blocker", TimeoutMS: 50}, blocking: true}, toolmanager.RegisterOpts{})
		require.NoError(t, err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	events, err := drain(t, coord, ctx, "use the blocking tool")
	require.NoError(t, err)

	var sawFailedTool bool
	for _, ev := range events {
		if ev.Kind == agentloop.EventToolExecDone && ev.ToolIsError {
			sawFailedTool = true
		}
	}
	require.True(t, sawFailedTool, "cancelling the context mid-call should surface the tool call as failed")
}

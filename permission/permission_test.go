package permission_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentloop/permission"
	"github.com/kadirpekel/agentloop/tool"
)

func TestBlocklistWinsOverAllowlist(t *testing.T) {
	m := permission.New(permission.Config{
		Allowlist: []string{"danger"},
		Blocklist: []string{"danger"},
	})
	result := m.Check("danger", nil)
	require.Equal(t, permission.DecisionBlocked, result.Decision)
}

func TestScopeAlwaysNeedsNoApproval(t *testing.T) {
	m := permission.New(permission.Config{DefaultScope: tool.ScopeAlways})
	result := m.Check("read_file", nil)
	require.Equal(t, permission.DecisionAllowed, result.Decision)
	require.Nil(t, result.Approval)
}

func TestScopeNeverIsBlocked(t *testing.T) {
	m := permission.New(permission.Config{DefaultScope: tool.ScopeNever})
	result := m.Check("shutdown", nil)
	require.Equal(t, permission.DecisionBlocked, result.Decision)
}

func TestScopeSessionCachesApprovalAfterResolve(t *testing.T) {
	m := permission.New(permission.Config{DefaultScope: tool.ScopeSession})

	first := m.Check("write_file", map[string]any{"path": "a.txt"})
	require.Equal(t, permission.DecisionNeedsApproval, first.Decision)
	require.NotNil(t, first.Approval)

	err := m.Resolve("write_file", *first.Approval, permission.ApprovalDecision{Approved: true})
	require.NoError(t, err)

	second := m.Check("write_file", map[string]any{"path": "b.txt"})
	require.Equal(t, permission.DecisionAllowed, second.Decision, "an approved session-scope grant should cover later calls without re-asking")
}

func TestScopeOnceAsksEveryTime(t *testing.T) {
	m := permission.New(permission.Config{DefaultScope: tool.ScopeOnce})

	first := m.Check("send_email", nil)
	require.Equal(t, permission.DecisionNeedsApproval, first.Decision)
	require.NoError(t, m.Resolve("send_email", *first.Approval, permission.ApprovalDecision{Approved: true}))

	second := m.Check("send_email", nil)
	require.Equal(t, permission.DecisionNeedsApproval, second.Decision, "scope=once must ask again even after a prior approval")
}

func TestDenialCachesNothing(t *testing.T) {
	m := permission.New(permission.Config{DefaultScope: tool.ScopeSession})

	first := m.Check("delete_all", nil)
	require.Equal(t, permission.DecisionNeedsApproval, first.Decision)
	require.NoError(t, m.Resolve("delete_all", *first.Approval, permission.ApprovalDecision{Approved: false}))

	second := m.Check("delete_all", nil)
	require.Equal(t, permission.DecisionNeedsApproval, second.Decision, "a denial must not be cached as a grant")
}

func TestCallbackOrDefaultAutoApprove(t *testing.T) {
	approving := permission.New(permission.Config{AutoApproveIfNoCallback: true})
	dec, err := approving.CallbackOrDefault(permission.ApprovalRequest{ToolName: "x"})
	require.NoError(t, err)
	require.True(t, dec.Approved)

	denying := permission.New(permission.Config{AutoApproveIfNoCallback: false})
	dec, err = denying.CallbackOrDefault(permission.ApprovalRequest{ToolName: "x"})
	require.NoError(t, err)
	require.False(t, dec.Approved)
}

func TestCallbackOrDefaultUsesRegisteredCallback(t *testing.T) {
	called := false
	m := permission.New(permission.Config{
		OnApproval: func(req permission.ApprovalRequest) (permission.ApprovalDecision, error) {
			called = true
			return permission.ApprovalDecision{Approved: true, ApprovedBy: "reviewer"}, nil
		},
	})
	dec, err := m.CallbackOrDefault(permission.ApprovalRequest{ToolName: "deploy"})
	require.NoError(t, err)
	require.True(t, called)
	require.True(t, dec.Approved)
	require.Equal(t, "reviewer", dec.ApprovedBy)
}

func TestRevokeClearsSessionGrant(t *testing.T) {
	m := permission.New(permission.Config{DefaultScope: tool.ScopeSession})
	first := m.Check("write_file", nil)
	require.NoError(t, m.Resolve("write_file", *first.Approval, permission.ApprovalDecision{Approved: true}))
	require.Equal(t, permission.DecisionAllowed, m.Check("write_file", nil).Decision)

	m.Revoke("write_file")
	require.Equal(t, permission.DecisionNeedsApproval, m.Check("write_file", nil).Decision)
}

func TestStateRoundTrip(t *testing.T) {
	m := permission.New(permission.Config{DefaultScope: tool.ScopeSession, Allowlist: []string{"safe_tool"}})
	first := m.Check("write_file", nil)
	require.NoError(t, m.Resolve("write_file", *first.Approval, permission.ApprovalDecision{Approved: true}))

	state := m.State()
	require.Contains(t, state.Approvals, "write_file")
	require.Contains(t, state.Allowlist, "safe_tool")

	restored := permission.New(permission.Config{DefaultScope: tool.ScopeSession})
	restored.Restore(state)
	require.Equal(t, permission.DecisionAllowed, restored.Check("write_file", nil).Decision)
	require.Equal(t, permission.DecisionAllowed, restored.Check("safe_tool", nil).Decision)
}

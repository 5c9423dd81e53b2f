package conversation_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentloop/conversation"
)

func TestCheckPairingRejectsUnmatchedResult(t *testing.T) {
	items := []conversation.Item{
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolResult("call-1", "ok", false)),
	}
	err := conversation.CheckPairing(items, false)
	require.Error(t, err)
}

func TestCheckPairingAllowsUnpairedWhenFlagged(t *testing.T) {
	items := []conversation.Item{
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolUse("call-1", "echo", `{}`, nil)),
	}
	require.Error(t, conversation.CheckPairing(items, false))
	require.NoError(t, conversation.CheckPairing(items, true))
}

func TestCheckPairingRejectsDuplicateToolUse(t *testing.T) {
	items := []conversation.Item{
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolUse("call-1", "echo", `{}`, nil)),
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolUse("call-1", "echo", `{}`, nil)),
	}
	err := conversation.CheckPairing(items, true)
	require.Error(t, err)
}

func TestCheckPairingAcceptsCompletePairs(t *testing.T) {
	items := []conversation.Item{
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolUse("call-1", "echo", `{}`, nil)),
		conversation.NewMessage(conversation.RoleTool, conversation.ToolResult("call-1", "ok", false)),
	}
	require.NoError(t, conversation.CheckPairing(items, false))
}

func TestPendingToolUsesOmitsAnsweredCalls(t *testing.T) {
	items := []conversation.Item{
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolUse("call-1", "echo", `{}`, nil)),
		conversation.NewMessage(conversation.RoleTool, conversation.ToolResult("call-1", "ok", false)),
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolUse("call-2", "echo", `{}`, nil)),
	}
	pending := conversation.PendingToolUses(items)
	require.Len(t, pending, 1)
	require.Equal(t, "call-2", pending[0].ToolUseID)
}

func TestIsToolPairedMatchesEitherSideOfAPairOrAnUnpairedUse(t *testing.T) {
	items := []conversation.Item{
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolUse("call-1", "echo", `{}`, nil)),
		conversation.NewMessage(conversation.RoleTool, conversation.ToolResult("call-1", "ok", false)),
		conversation.TextMessage(conversation.RoleUser, "plain text"),
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolUse("call-2", "echo", `{}`, nil)),
	}
	require.True(t, conversation.IsToolPaired(items, 0))
	require.True(t, conversation.IsToolPaired(items, 1))
	require.False(t, conversation.IsToolPaired(items, 2))
	require.True(t, conversation.IsToolPaired(items, 3))
}

func TestPairIndicesLeavesUnpairedToolUseWithoutResultIndex(t *testing.T) {
	items := []conversation.Item{
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolUse("call-1", "echo", `{}`, nil)),
		conversation.NewMessage(conversation.RoleTool, conversation.ToolResult("call-1", "ok", false)),
		conversation.NewMessage(conversation.RoleAssistant, conversation.ToolUse("call-2", "echo", `{}`, nil)),
	}
	pairs := conversation.PairIndices(items)
	require.Equal(t, [2]int{0, 1}, pairs["call-1"])
	pair2 := pairs["call-2"]
	require.Equal(t, 2, pair2[0])
	require.Equal(t, 0, pair2[1], "an unpaired tool-use has no result index set")
}

package context_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	agctx "github.com/kadirpekel/agentloop/context"
	"github.com/kadirpekel/agentloop/conversation"
)

func bigMessage(role conversation.Role, n int) conversation.Item {
	return conversation.TextMessage(role, strings.Repeat("x", n))
}

func TestAssembleCompactsWhenOverThreshold(t *testing.T) {
	m := agctx.New(agctx.Config{
		Budget:   agctx.Budget{ModelContextLimit: 400, ReservedOutput: 0, WarningThreshold: 0.70},
		Strategy: agctx.DefaultRolling{},
	})

	for i := 0; i < 10; i++ {
		m.AppendItem(bigMessage(conversation.RoleUser, 100))
		m.AppendItem(bigMessage(conversation.RoleAssistant, 100))
	}

	before := len(m.Items())
	assembled, err := m.Assemble()
	require.NoError(t, err)

	after := len(m.Items())
	require.Less(t, after, before, "compaction should have removed some items")
	require.LessOrEqual(t, assembled.TotalTokens, 400)
}

func TestAssembleOverflowsWhenCompactionCannotFit(t *testing.T) {
	m := agctx.New(agctx.Config{
		Budget:   agctx.Budget{ModelContextLimit: 50, ReservedOutput: 0, WarningThreshold: 0.70},
		Strategy: agctx.DefaultRolling{},
	})

	// A single in-flight (unpaired) tool call is never removed by the
	// rolling strategy (removeOldestUntil skips any item carrying a
	// ToolUse/ToolResult block, paired or not), so a large-enough unpaired
	// call cannot be compacted away and Assemble must report overflow even
	// after every removable item is gone.
	m.AppendItem(conversation.NewMessage(conversation.RoleAssistant,
		conversation.ToolUse("call-1", "big_tool", strings.Repeat("x", 500), nil)))
	m.AppendItem(bigMessage(conversation.RoleUser, 10))

	_, err := m.Assemble()
	require.Error(t, err)
}

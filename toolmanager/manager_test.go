package toolmanager_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentloop/tool"
	"github.com/kadirpekel/agentloop/toolmanager"
)

// countingTool counts how many times it actually ran, to distinguish a
// genuine execution from a cache hit.
type countingTool struct {
	descriptor tool.Descriptor
	calls      atomic.Int32
}

func (t *countingTool) Descriptor() tool.Descriptor { return t.descriptor }

func (t *countingTool) Call(ctx *tool.ExecContext, args map[string]any) (map[string]any, error) {
	t.calls.Add(1)
	return map[string]any{"n": t.calls.Load()}, nil
}

func TestIdempotentCacheHit(t *testing.T) {
	tm, err := toolmanager.New(toolmanager.Config{})
	require.NoError(t, err)

	impl := &countingTool{descriptor: tool.Descriptor{
		Name:        "lookup",
		Idempotency: tool.Idempotency{Safe: true, TTLMS: 60000},
	}}
	_, err = tm.Register(impl, toolmanager.RegisterOpts{})
	require.NoError(t, err)

	call := tool.Call{ID: "c1", Name: "lookup", RawArgs: `{"q":"same"}`, Arguments: map[string]any{"q": "same"}}

	first := tm.Execute(context.Background(), call, nil, nil)
	require.True(t, first.OK)
	require.False(t, first.CacheHit)

	second := tm.Execute(context.Background(), call, nil, nil)
	require.True(t, second.OK)
	require.True(t, second.CacheHit)

	require.Equal(t, int32(1), impl.calls.Load(), "a cache hit must not re-invoke the tool")
}

func TestToolNotFound(t *testing.T) {
	tm, err := toolmanager.New(toolmanager.Config{})
	require.NoError(t, err)

	result := tm.Execute(context.Background(), tool.Call{ID: "c1", Name: "missing"}, nil, nil)
	require.False(t, result.OK)
	require.Equal(t, "tool_not_found", result.ErrKind)
}

// pluginBundle is a tool.Toolset grouping a fixed list of tools under one
// name, mirroring an MCP server's tool listing.
type pluginBundle struct {
	name  string
	tools []tool.Callable
}

func (b *pluginBundle) Name() string { return b.name }

func (b *pluginBundle) Tools(ctx context.Context) ([]tool.Callable, error) {
	return b.tools, nil
}

func TestRegisterToolsetAppliesNamespaceAndPredicate(t *testing.T) {
	tm, err := toolmanager.New(toolmanager.Config{})
	require.NoError(t, err)

	bundle := &pluginBundle{name: "search", tools: []tool.Callable{
		&countingTool{descriptor: tool.Descriptor{Name: "web"}},
		&countingTool{descriptor: tool.Descriptor{Name: "files"}},
	}}

	registered, err := tm.RegisterToolset(context.Background(), bundle, tool.Only("web"), toolmanager.RegisterOpts{})
	require.NoError(t, err)
	require.Equal(t, []string{"search_web"}, registered)

	result := tm.Execute(context.Background(), tool.Call{ID: "c1", Name: "search_web"}, nil, nil)
	require.True(t, result.OK)

	missing := tm.Execute(context.Background(), tool.Call{ID: "c2", Name: "search_files"}, nil, nil)
	require.False(t, missing.OK, "predicate should have excluded the files tool from registration")
}

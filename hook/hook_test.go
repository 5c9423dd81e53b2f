package hook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentloop/errs"
	"github.com/kadirpekel/agentloop/hook"
)

func TestRunInvokesHooksInRegistrationOrder(t *testing.T) {
	m := hook.New(nil)
	var order []string
	m.Register(hook.BeforeTool, "first", func(ctx context.Context, data any) error {
		order = append(order, "first")
		return nil
	}, "")
	m.Register(hook.BeforeTool, "second", func(ctx context.Context, data any) error {
		order = append(order, "second")
		return nil
	}, "")

	require.NoError(t, m.Run(context.Background(), hook.BeforeTool, nil))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestRunStopsAndWrapsOnFailFailureMode(t *testing.T) {
	m := hook.New(nil)
	boom := errors.New("boom")
	var secondCalled bool
	m.Register(hook.BeforeTool, "failing", func(ctx context.Context, data any) error { return boom }, hook.OnFailureFail)
	m.Register(hook.BeforeTool, "never-reached", func(ctx context.Context, data any) error {
		secondCalled = true
		return nil
	}, "")

	err := m.Run(context.Background(), hook.BeforeTool, nil)
	require.Error(t, err)
	require.Equal(t, errs.KindHookFailure, errs.KindOf(err))
	require.ErrorIs(t, err, boom)
	require.False(t, secondCalled, "a failing hook in fail mode must stop subsequent hooks")
}

type warnLogger struct{ warned bool }

func (l *warnLogger) Warn(msg string, args ...any) { l.warned = true }

func TestRunContinuesOnWarnFailureMode(t *testing.T) {
	logger := &warnLogger{}
	m := hook.New(logger)
	var secondCalled bool
	m.Register(hook.AfterTool, "warns", func(ctx context.Context, data any) error { return errors.New("minor") }, hook.OnFailureWarn)
	m.Register(hook.AfterTool, "runs-anyway", func(ctx context.Context, data any) error {
		secondCalled = true
		return nil
	}, "")

	require.NoError(t, m.Run(context.Background(), hook.AfterTool, nil))
	require.True(t, secondCalled)
	require.True(t, logger.warned)
}

func TestRunSwallowsOnIgnoreFailureMode(t *testing.T) {
	m := hook.New(nil)
	m.Register(hook.AfterCompact, "ignored", func(ctx context.Context, data any) error { return errors.New("ignored") }, hook.OnFailureIgnore)

	require.NoError(t, m.Run(context.Background(), hook.AfterCompact, nil))
}

func TestHasReportsRegistration(t *testing.T) {
	m := hook.New(nil)
	require.False(t, m.Has(hook.BeforeIteration))
	m.Register(hook.BeforeIteration, "x", func(ctx context.Context, data any) error { return nil }, "")
	require.True(t, m.Has(hook.BeforeIteration))
}

package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentloop/observability"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
	}
	for input, want := range cases {
		got, err := observability.ParseLevel(input)
		require.NoError(t, err)
		require.Equal(t, want, got, "input %q", input)
	}
}

func TestFilteringHandlerEnabledRespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	h := observability.NewFilteringHandler(base, slog.LevelWarn)

	require.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestFilteringHandlerAtDebugPassesEverything(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	h := observability.NewFilteringHandler(base, slog.LevelDebug)
	logger := slog.New(h)

	logger.Debug("debug message")
	require.Contains(t, buf.String(), "debug message")
}

func TestNewLoggerProducesAWorkingLogger(t *testing.T) {
	logger := observability.NewLogger(slog.LevelInfo)
	require.NotNil(t, logger)
}

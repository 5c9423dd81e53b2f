// Package observability provides the structured-logging, metrics, and
// tracing surface for the agentic loop. Grounded on the teacher's
// pkg/logger/logger.go (the filtering slog.Handler wrapping convention) and
// pkg/observability/metrics.go (the Prometheus registry/vector pattern).
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var logWriter = os.Stdout

const modulePackagePrefix = "github.com/kadirpekel/agentloop"

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// filteringHandler wraps a slog.Handler and suppresses third-party library
// logs unless the level is DEBUG, so a caller embedding this module isn't
// flooded by its transitive dependencies' own logging.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

// NewFilteringHandler wraps handler so that, above DEBUG, only log records
// originating from this module's own packages pass through.
func NewFilteringHandler(handler slog.Handler, minLevel slog.Level) slog.Handler {
	return &filteringHandler{handler: handler, minLevel: minLevel}
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	fullName := fn.Name()
	file, _ := fn.FileLine(pc)
	return strings.Contains(fullName, modulePackagePrefix) || strings.Contains(file, "agentloop/")
}

// NewLogger builds the default *slog.Logger for this module: a JSON handler
// wrapped in the filtering handler above, at the given level.
func NewLogger(level slog.Level) *slog.Logger {
	base := slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: level})
	return slog.New(NewFilteringHandler(base, level))
}

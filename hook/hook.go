// Package hook implements the seven named extension points of the agentic
// loop (spec §4.6): before:iteration, after:iteration, before:tool,
// after:tool, approve:tool, before:compact, after:compact. Grounded on the
// teacher's pkg/agent/llmagent's Before/AfterModelCallback and
// Before/AfterToolCallback slices (pkg/agent/llmagent/llmagent.go,
// pkg/agent/llmagent/flow.go), generalized from four fixed callback slots
// into a named-point registry so new points (compaction) don't require new
// struct fields.
package hook

import (
	"context"
	"fmt"

	"github.com/kadirpekel/agentloop/errs"
)

// Point names a hook extension point.
type Point string

const (
	BeforeIteration Point = "before:iteration"
	AfterIteration  Point = "after:iteration"
	BeforeTool      Point = "before:tool"
	AfterTool       Point = "after:tool"
	ApproveTool     Point = "approve:tool"
	BeforeCompact   Point = "before:compact"
	AfterCompact    Point = "after:compact"
)

// FailureMode controls what happens when a hook returns an error.
type FailureMode string

const (
	// OnFailureFail aborts the operation the hook guards, surfacing the
	// hook's error to the caller.
	OnFailureFail FailureMode = "fail"
	// OnFailureWarn logs the error (via the supplied Logger) and continues.
	OnFailureWarn FailureMode = "warn"
	// OnFailureIgnore silently continues.
	OnFailureIgnore FailureMode = "ignore"
)

// Func is a single hook callback. ctx carries the run's cancellation
// signal; data is point-specific (a *tool.Call for before:tool, a
// *tool.Result for after:tool, a *permission.ApprovalRequest for
// approve:tool, and the run's *agentloop.ExecutionContext for the iteration
// and compact points) and mutated in place when the hook needs to influence
// the operation (e.g. rewriting a before:tool call's arguments).
type Func func(ctx context.Context, data any) error

// Logger is the narrow logging contract hook warnings are emitted through,
// satisfied by *slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

type registration struct {
	name string
	fn   Func
	mode FailureMode
}

// Manager runs registered hooks for each point in registration order.
type Manager struct {
	points map[Point][]registration
	log    Logger
}

func New(log Logger) *Manager {
	return &Manager{points: map[Point][]registration{}, log: log}
}

// Register adds fn at point, run after any hooks already registered there.
// mode controls how a returned error is handled; the zero value ("") is
// treated as OnFailureFail.
func (m *Manager) Register(point Point, name string, fn Func, mode FailureMode) {
	if mode == "" {
		mode = OnFailureFail
	}
	m.points[point] = append(m.points[point], registration{name: name, fn: fn, mode: mode})
}

// Run executes every hook registered at point, in order, stopping at the
// first one whose FailureMode is "fail" and that returns an error.
func (m *Manager) Run(ctx context.Context, point Point, data any) error {
	for _, reg := range m.points[point] {
		if err := reg.fn(ctx, data); err != nil {
			wrapped := errs.Wrap(errs.KindHookFailure, fmt.Sprintf("hook %q at %s failed", reg.name, point), err)
			switch reg.mode {
			case OnFailureWarn:
				if m.log != nil {
					m.log.Warn("hook failed, continuing", "point", string(point), "hook", reg.name, "error", err)
				}
			case OnFailureIgnore:
				// swallow
			default:
				return wrapped
			}
		}
	}
	return nil
}

// Has reports whether any hook is registered at point.
func (m *Manager) Has(point Point) bool { return len(m.points[point]) > 0 }

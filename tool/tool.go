// Package tool defines the tool descriptor, call/result types, and the
// execution-context contract a Tool implementation receives. Grounded on the
// teacher's pkg/tool/tool.go Tool/CallableTool/StreamingTool/Result/Context
// interfaces, generalized from the teacher's agent-callback-embedding
// Context to the narrower cancellation/logging surface this spec names.
package tool

import (
	"context"
	"regexp"
	"strings"
)

// Scope is the permission gating mode a tool is registered with.
type Scope string

const (
	ScopeAlways  Scope = "always"
	ScopeSession Scope = "session"
	ScopeOnce    Scope = "once"
	ScopeNever   Scope = "never"
)

// Risk is an approval-message severity hint surfaced to approval callbacks.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// OutputSizeHint describes how large a tool's results tend to be. Neither the
// ToolManager nor context.AlgorithmicToolOffload reads it; offload decisions
// use each result's measured size.
type OutputSizeHint string

const (
	OutputSmall    OutputSizeHint = "small"
	OutputVariable OutputSizeHint = "variable"
	OutputLarge    OutputSizeHint = "large"
)

// Permission is the tool descriptor's permission sub-record.
type Permission struct {
	Scope            Scope
	Risk             Risk
	ApprovalMessage  string
	SessionTTLMillis int64 // 0 = no expiry
}

// Concurrency is the tool descriptor's concurrency sub-record.
type Concurrency struct {
	MaxConcurrent int // 0 = unbounded
	Blocking      bool
}

// Idempotency is the tool descriptor's caching sub-record.
type Idempotency struct {
	Safe  bool
	TTLMS int64
}

// RetryPolicy is the opt-in retry descriptor from pipeline step 8.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffInitialMS  int64
	BackoffFactor     float64
	RetryableKinds    []string
}

// Descriptor is the static metadata every Tool carries, per spec §3.
type Descriptor struct {
	Name           string
	Description    string
	ParametersJSON map[string]any // JSON schema
	Permission     Permission
	Concurrency    Concurrency
	Idempotency    Idempotency
	OutputSize     OutputSizeHint
	TimeoutMS      int64
	Retry          *RetryPolicy
}

var sanitizePattern = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
var collapsePattern = regexp.MustCompile(`_+`)

// SanitizeName implements the ToolManager naming rule from spec §4.2: any
// run of non [A-Za-z0-9_-] becomes one underscore, a leading digit gets an
// "n_" prefix, and an empty result becomes "unnamed".
func SanitizeName(name string) string {
	s := sanitizePattern.ReplaceAllString(name, "_")
	s = collapsePattern.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unnamed"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "n_" + s
	}
	return s
}

// Call is a tool-call intent parsed from a provider response.
type Call struct {
	ID        string
	Name      string
	RawArgs   string
	Arguments map[string]any
}

// Result is the outcome of executing a Call.
type Result struct {
	ID         string
	OK         bool
	Value      any
	ErrMessage string
	ErrKind    string
	DurationMS int64
	Images     []string
	CacheHit   bool
}

// ExecContext is what a Tool's Call method receives. It embeds a
// cancellation-aware context.Context (honoring it is optional per spec §4.1,
// but tools that do must check Done()) plus identity and plugin access.
type ExecContext struct {
	context.Context
	CallID string
	UserID string
	Memory MemorySearcher
	Logger Logger
}

// MemorySearcher lets a tool query a memory plugin without importing it
// directly, breaking the import cycle the teacher avoids with its own
// tool.Context.SearchMemory method.
type MemorySearcher interface {
	SearchMemory(ctx context.Context, query string) ([]MemoryHit, error)
}

// MemoryHit is one result of a memory search.
type MemoryHit struct {
	Key   string
	Value any
	Score float64
}

// Logger is the minimal logging surface a tool needs; satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Callable is the synchronous tool implementation contract.
type Callable interface {
	Descriptor() Descriptor
	Call(ctx *ExecContext, args map[string]any) (map[string]any, error)
}

// StreamChunk is one increment of a StreamingTool's output.
type StreamChunk struct {
	Content  map[string]any
	Done     bool
	Err      error
	Metadata map[string]any
}

// Streaming is the streaming tool implementation contract; CallStreaming
// returns a channel of chunks so callers can select against ctx.Done().
type Streaming interface {
	Descriptor() Descriptor
	CallStreaming(ctx *ExecContext, args map[string]any) (<-chan StreamChunk, error)
}

// Predicate filters tools by name, used to build allow/deny lists and
// toolset composition, mirroring the teacher's StringPredicate/AllowAll/
// DenyAll/Combine family.
type Predicate func(name string) bool

func AllowAll() Predicate { return func(string) bool { return true } }
func DenyAll() Predicate  { return func(string) bool { return false } }

func Only(names ...string) Predicate {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func Not(p Predicate) Predicate {
	return func(name string) bool { return !p(name) }
}

func And(ps ...Predicate) Predicate {
	return func(name string) bool {
		for _, p := range ps {
			if !p(name) {
				return false
			}
		}
		return true
	}
}

func Or(ps ...Predicate) Predicate {
	return func(name string) bool {
		for _, p := range ps {
			if p(name) {
				return true
			}
		}
		return false
	}
}

// Toolset groups tools under a shared name, e.g. an MCP server's tool list.
type Toolset interface {
	Name() string
	Tools(ctx context.Context) ([]Callable, error)
}

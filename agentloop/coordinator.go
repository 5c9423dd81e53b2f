package agentloop

import (
	"context"
	"fmt"
	"iter"

	agctx "github.com/kadirpekel/agentloop/context"
	"github.com/kadirpekel/agentloop/hook"
	"github.com/kadirpekel/agentloop/memoryplugin"
	"github.com/kadirpekel/agentloop/observability"
	"github.com/kadirpekel/agentloop/permission"
	"github.com/kadirpekel/agentloop/provider"
	"github.com/kadirpekel/agentloop/session"
	"github.com/kadirpekel/agentloop/tool"
	"github.com/kadirpekel/agentloop/toolmanager"
)

// Coordinator is the public entry point (spec §4.1's AgentCoordinator): it
// owns the long-lived collaborators (tool manager, permission manager,
// context manager, provider, hooks) and hands out a fresh ExecutionContext
// per run, loading and saving a session.Document around it. Grounded on
// the teacher's pkg/agent top-level Agent.Run entry point generalized from
// a tree of delegating agents (SubAgents, FindAgent, WalkAgents in
// pkg/agent/agent.go) down to this module's single-loop, optionally
// sub-agent-delegating scope (spec §4.7).
type Coordinator struct {
	Loop    *Loop
	Store   session.Store
	Working *memoryplugin.WorkingMemoryPlugin
	InCtx   *memoryplugin.InContextMemoryPlugin
}

// New builds a Coordinator with sensible collaborators wired together: a
// ToolManager, PermissionManager, ContextManager with both memory
// plugins registered, and the given provider and hook manager.
func New(cfg CoordinatorConfig) (*Coordinator, error) {
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = hook.New(cfg.Logger)
	}

	tm, err := toolmanager.New(toolmanager.Config{CacheSize: cfg.ToolCacheSize, Audit: cfg.Audit, Hooks: hooks})
	if err != nil {
		return nil, fmt.Errorf("agentloop: %w", err)
	}

	pm := permission.New(permission.Config{
		DefaultScope:            cfg.DefaultScope,
		DefaultRisk:             cfg.DefaultRisk,
		Allowlist:               cfg.Allowlist,
		Blocklist:               cfg.Blocklist,
		OnApproval:              cfg.Approve,
		AutoApproveIfNoCallback: cfg.AutoApproveIfNoCallback,
		Audit:                   cfg.Audit,
	})

	working := memoryplugin.NewWorkingMemoryPlugin(cfg.Audit)
	inctx := memoryplugin.NewInContextMemoryPlugin(cfg.Audit, cfg.PersistentBackend)

	strategy := cfg.Strategy
	if strategy == nil {
		strategy = agctx.DefaultRolling{}
	}
	ctxMgr := agctx.New(agctx.Config{
		Budget:           cfg.Budget,
		Strategy:         strategy,
		System:           cfg.SystemPrompt,
		Offload:          working,
		MaxInputMessages: cfg.MaxInputMessages,
	})
	ctxMgr.RegisterPlugin(working)
	ctxMgr.RegisterPlugin(inctx)

	loop := &Loop{
		Tools:         tm,
		Permission:    pm,
		Approve:       cfg.Approve,
		Context:       ctxMgr,
		Provider:      cfg.Provider,
		Hooks:         hooks,
		Metrics:       cfg.Metrics,
		Bounds:        cfg.Bounds,
		ErrorHandling: cfg.ErrorHandling,
	}

	return &Coordinator{Loop: loop, Store: cfg.Store, Working: working, InCtx: inctx}, nil
}

// CoordinatorConfig configures New.
type CoordinatorConfig struct {
	Provider                provider.Port
	Store                   session.Store
	PersistentBackend       memoryplugin.PersistentBackend
	Budget                  agctx.Budget
	Strategy                agctx.Strategy
	MaxInputMessages        int
	Bounds                  Bounds
	ErrorHandling           ErrorHandling
	SystemPrompt            string
	DefaultScope            tool.Scope
	DefaultRisk             tool.Risk
	Allowlist               []string
	Blocklist               []string
	AutoApproveIfNoCallback bool
	Approve                 permission.ApprovalCallback
	Hooks                   *hook.Manager
	Metrics                 *observability.Metrics
	Logger                  hook.Logger
	Audit                   toolmanager.AuditFunc
	ToolCacheSize           int
}

// Response is the terminal outcome of one turn: the final assistant text
// plus the run's summary metrics, the drained form of Stream's event
// sequence (spec §4.1: "Run is a thin wrapper that drains the sequence and
// returns the terminal response").
type Response struct {
	Text       string
	State      State
	Iterations int
	Metrics    Metrics
}

// Stream loads sessionID's prior document (if any), runs one turn with
// userInput, and streams the resulting events. The session is checkpointed
// after every completed iteration, not only at the run's terminal state
// (spec §9's "checkpoint/restore mid-run": the same Document a crash would
// need to recover from, captured without waiting for the run to end), so a
// paused, cancelled, or crashed run can be resumed by calling Stream again
// with the same sessionID and an empty userInput.
func (c *Coordinator) Stream(ctx context.Context, sessionID, userInput string) iter.Seq2[Event, error] {
	events, _ := c.stream(ctx, sessionID, userInput)
	return events
}

// Run is a thin wrapper around Stream: it drains the event sequence and
// returns the terminal Response (spec §2's "public entry for run/stream" —
// a plain synchronous result for callers that don't need to observe
// intermediate events). Text holds the last text:done event's FinalText;
// State and Metrics reflect the run's ExecutionContext once the sequence
// has been fully drained.
func (c *Coordinator) Run(ctx context.Context, sessionID, userInput string) (Response, error) {
	events, ec := c.stream(ctx, sessionID, userInput)

	var resp Response
	for ev, err := range events {
		if err != nil {
			resp.State, resp.Metrics = ec.State(), ec.Metrics()
			resp.Iterations = resp.Metrics.Iterations
			return resp, err
		}
		if ev.Kind == EventTextDone {
			resp.Text = ev.FinalText
		}
	}

	resp.State, resp.Metrics = ec.State(), ec.Metrics()
	resp.Iterations = resp.Metrics.Iterations
	return resp, nil
}

// stream is the shared implementation behind Stream and Run: it builds the
// run's ExecutionContext up front (so Run can read its final state and
// metrics after draining) and returns both the event sequence and that
// context.
func (c *Coordinator) stream(ctx context.Context, sessionID, userInput string) (iter.Seq2[Event, error], *ExecutionContext) {
	ec := NewExecutionContext(c.Loop.Bounds)

	seq := func(yield func(Event, error) bool) {
		if err := c.load(sessionID); err != nil {
			yield(Event{}, err)
			return
		}

		for ev, err := range c.Loop.Run(ctx, ec, userInput) {
			if !yield(ev, err) {
				break
			}
			if err != nil {
				break
			}
			if ev.Kind == EventIterationDone {
				if serr := c.save(sessionID, ec); serr != nil {
					yield(Event{}, serr)
					return
				}
			}
		}

		if serr := c.save(sessionID, ec); serr != nil {
			yield(Event{}, serr)
		}
	}
	return seq, ec
}

func (c *Coordinator) load(sessionID string) error {
	if c.Store == nil || sessionID == "" {
		return nil
	}
	doc, err := c.Store.Load(sessionID)
	if err == session.ErrNotFound {
		return c.InCtx.LoadPersistent()
	}
	if err != nil {
		return fmt.Errorf("agentloop: loading session %s: %w", sessionID, err)
	}
	for _, item := range doc.Conversation {
		c.Loop.Context.AppendItem(item)
	}
	c.Loop.Permission.Restore(doc.ApprovalState)
	if entries, ok := doc.PluginState[c.Working.Underlying().Name()]; ok {
		if err := c.Working.Restore(entries); err != nil {
			return err
		}
	}
	if entries, ok := doc.PluginState[c.InCtx.Underlying().Name()]; ok {
		if err := c.InCtx.Restore(entries); err != nil {
			return err
		}
	}
	return c.InCtx.LoadPersistent()
}

func (c *Coordinator) save(sessionID string, ec *ExecutionContext) error {
	if c.Store == nil || sessionID == "" {
		return nil
	}
	m := ec.Metrics()
	doc := session.Document{
		Version:      session.CurrentVersion,
		SessionID:    sessionID,
		Conversation: c.Loop.Context.Items(),
		ApprovalState: c.Loop.Permission.State(),
		PluginState: map[string][]memoryplugin.Entry{
			c.Working.Underlying().Name(): pluginEntries(c.Working),
			c.InCtx.Underlying().Name():   pluginEntries(c.InCtx),
		},
		ExecutionMetrics: session.Metrics{
			IterationsRun:   m.Iterations,
			ToolCallsTotal:  m.ToolCallsTotal,
			ToolCallsFailed: m.ToolCallsFailed,
			TokensUsedLast:  m.TokensLast,
			CompactionsRun:  m.Compactions,
		},
	}
	if err := c.Store.Save(doc); err != nil {
		return fmt.Errorf("agentloop: saving session %s: %w", sessionID, err)
	}
	return nil
}

type entryStater interface {
	State() (any, error)
}

func pluginEntries(p entryStater) []memoryplugin.Entry {
	st, err := p.State()
	if err != nil {
		return nil
	}
	entries, _ := st.([]memoryplugin.Entry)
	return entries
}

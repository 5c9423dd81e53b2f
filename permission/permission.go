// Package permission implements the PermissionManager: scope-based tool
// gating, the session approval cache, and allow/blocklist overrides. Grounded
// on the teacher's session-state-backed approval bookkeeping in
// pkg/agent/llmagent/flow.go (checkApprovalDecision/clearApprovalDecision,
// the approvalStatePrefix/approvalNameStatePrefix key scheme) and its
// HITL filtering in pkg/agent/tool_approval.go, generalized here into a
// first-class serializable ApprovalState instead of opaque session keys.
package permission

import (
	"errors"
	"sync"
	"time"

	"github.com/kadirpekel/agentloop/tool"
)

// ErrApprovalPending is returned by an ApprovalCallback to signal that a
// decision is not available synchronously (e.g. it was routed to a human
// reviewer). The ToolManager surfaces this distinctly from a denial so the
// loop can park the run in StatePaused instead of failing the tool call,
// per spec §4.3/§9's human-in-the-loop long-running approval behavior.
var ErrApprovalPending = errors.New("permission: approval decision pending")

// Decision is the outcome of a permission check.
type Decision string

const (
	DecisionAllowed      Decision = "allowed"
	DecisionBlocked      Decision = "blocked"
	DecisionNeedsApproval Decision = "needs_approval"
)

// CheckResult is returned by CheckPermission.
type CheckResult struct {
	Decision Decision
	Reason   string
	Approval *ApprovalRequest // set when Decision == DecisionNeedsApproval
}

// ApprovalRequest carries everything an approval callback needs to render a
// prompt to a human or policy engine.
type ApprovalRequest struct {
	ToolName string
	Args     map[string]any
	Risk     tool.Risk
	Message  string
}

// ApprovalDecision is what an approval callback (or a resumed HITL flow)
// returns.
type ApprovalDecision struct {
	Approved   bool
	Reason     string
	Scope      tool.Scope // optional override, e.g. escalate once->session
	ApprovedBy string
}

// ApprovalCallback is invoked synchronously for a NeedsApproval result. It
// may return ErrApprovalPending as its error to signal the caller should park the run
// (see agentloop's PAUSED state) rather than deny or approve immediately.
type ApprovalCallback func(req ApprovalRequest) (ApprovalDecision, error)

// record is a session-scoped grant, persisted via ApprovalState.
type record struct {
	Scope      tool.Scope
	ApprovedAt time.Time
	ApprovedBy string
	ExpiresAt  *time.Time
}

func (r record) expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// ApprovalState is the serializable part of PermissionManager that belongs
// in a session document (spec §4.3: "{version, approvals{}, allowlist[],
// blocklist[]}").
type ApprovalState struct {
	Version    int                 `json:"version"`
	Approvals  map[string]Approval `json:"approvals"`
	Allowlist  []string            `json:"allowlist"`
	Blocklist  []string            `json:"blocklist"`
}

// Approval is the JSON-friendly projection of a record.
type Approval struct {
	Scope      tool.Scope `json:"scope"`
	ApprovedAt time.Time  `json:"approved_at"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// DefaultScope/DefaultRisk/AutoApproveIfNoCallback configure Manager
// construction (spec §6 permission-level configuration surface).
type Config struct {
	DefaultScope    tool.Scope
	DefaultRisk     tool.Risk
	Allowlist       []string
	Blocklist       []string
	OnApproval      ApprovalCallback
	// AutoApproveIfNoCallback resolves spec §9's recorded Open Question as an
	// explicit, embedder-overridable flag: when a call needs approval and no
	// callback is registered, true approves it and false (the zero value, so
	// the default) denies it. See DESIGN.md.
	AutoApproveIfNoCallback bool
	Audit                   func(event string, fields map[string]any)
}

// PerTool overrides the defaults for a specific tool name.
type PerTool struct {
	Scope           tool.Scope
	Risk            tool.Risk
	ApprovalMessage string
	SessionTTL      time.Duration
}

// Manager is the PermissionManager.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	allow     map[string]bool
	block     map[string]bool
	approvals map[string]record
	perTool   map[string]PerTool
	// sessionAsked tracks, per tool name, whether the approval callback has
	// already been invoked this session for scope=session tools (spec §8:
	// "at most one approval callback invocation per session per tool name").
	sessionAsked map[string]bool
}

func New(cfg Config) *Manager {
	m := &Manager{
		cfg:          cfg,
		allow:        toSet(cfg.Allowlist),
		block:        toSet(cfg.Blocklist),
		approvals:    map[string]record{},
		perTool:      map[string]PerTool{},
		sessionAsked: map[string]bool{},
	}
	if m.cfg.DefaultScope == "" {
		m.cfg.DefaultScope = tool.ScopeOnce
	}
	if m.cfg.DefaultRisk == "" {
		m.cfg.DefaultRisk = tool.RiskMedium
	}
	return m
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// SetPerTool registers a per-tool override (scope/risk/approval message/TTL).
func (m *Manager) SetPerTool(name string, p PerTool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perTool[name] = p
}

func (m *Manager) effectiveScope(name string) (tool.Scope, tool.Risk, string) {
	if p, ok := m.perTool[name]; ok {
		scope, risk := p.Scope, p.Risk
		if scope == "" {
			scope = m.cfg.DefaultScope
		}
		if risk == "" {
			risk = m.cfg.DefaultRisk
		}
		return scope, risk, p.ApprovalMessage
	}
	return m.cfg.DefaultScope, m.cfg.DefaultRisk, ""
}

// Check implements spec §4.3's check algorithm: blocklist wins, then
// allowlist, then the tool's effective scope.
func (m *Manager) Check(name string, args map[string]any) CheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.block[name] {
		return CheckResult{Decision: DecisionBlocked, Reason: "tool is blocklisted"}
	}
	if m.allow[name] {
		return CheckResult{Decision: DecisionAllowed}
	}

	scope, risk, msg := m.effectiveScope(name)
	switch scope {
	case tool.ScopeNever:
		return CheckResult{Decision: DecisionBlocked, Reason: "tool scope is never"}
	case tool.ScopeAlways:
		return CheckResult{Decision: DecisionAllowed}
	case tool.ScopeSession:
		if r, ok := m.approvals[name]; ok && !r.expired(time.Now()) {
			return CheckResult{Decision: DecisionAllowed}
		}
		return CheckResult{Decision: DecisionNeedsApproval, Approval: &ApprovalRequest{
			ToolName: name, Args: args, Risk: risk, Message: msg,
		}}
	default: // once
		return CheckResult{Decision: DecisionNeedsApproval, Approval: &ApprovalRequest{
			ToolName: name, Args: args, Risk: risk, Message: msg,
		}}
	}
}

// Resolve applies an ApprovalCallback's (or a resumed HITL flow's) decision
// for a NeedsApproval check. On approval with scope=session it caches the
// grant; on denial nothing is cached (so a future call is asked again,
// unless the tool's scope is itself `once`, which always asks again).
func (m *Manager) Resolve(name string, req ApprovalRequest, dec ApprovalDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.audit("tool:"+decisionAuditSuffix(dec.Approved), map[string]any{"tool": name})

	if !dec.Approved {
		return nil
	}

	scope := dec.Scope
	if scope == "" {
		scope, _, _ = m.effectiveScope(name)
	}
	if scope == tool.ScopeSession {
		var expires *time.Time
		if p, ok := m.perTool[name]; ok && p.SessionTTL > 0 {
			t := time.Now().Add(p.SessionTTL)
			expires = &t
		}
		m.approvals[name] = record{Scope: scope, ApprovedAt: time.Now(), ApprovedBy: dec.ApprovedBy, ExpiresAt: expires}
	}
	return nil
}

func decisionAuditSuffix(approved bool) string {
	if approved {
		return "approved"
	}
	return "denied"
}

// CallbackOrDefault runs the configured approval callback, or applies the
// AutoApproveIfNoCallback default when none is registered.
func (m *Manager) CallbackOrDefault(req ApprovalRequest) (ApprovalDecision, error) {
	if m.cfg.OnApproval != nil {
		m.mu.Lock()
		m.sessionAsked[req.ToolName] = true
		m.mu.Unlock()
		return m.cfg.OnApproval(req)
	}
	m.audit("tool:approval_default", map[string]any{"tool": req.ToolName, "auto_approved": m.cfg.AutoApproveIfNoCallback})
	return ApprovalDecision{Approved: m.cfg.AutoApproveIfNoCallback}, nil
}

// Revoke removes a cached session approval, emitting tool:revoked.
func (m *Manager) Revoke(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.approvals, name)
	m.audit("tool:revoked", map[string]any{"tool": name})
}

func (m *Manager) audit(event string, fields map[string]any) {
	if m.cfg.Audit != nil {
		m.cfg.Audit(event, fields)
	}
}

// State exports the serializable ApprovalState for the session document.
func (m *Manager) State() ApprovalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	approvals := make(map[string]Approval, len(m.approvals))
	for name, r := range m.approvals {
		approvals[name] = Approval{Scope: r.Scope, ApprovedAt: r.ApprovedAt, ApprovedBy: r.ApprovedBy, ExpiresAt: r.ExpiresAt}
	}
	return ApprovalState{
		Version:   1,
		Approvals: approvals,
		Allowlist: keys(m.allow),
		Blocklist: keys(m.block),
	}
}

// Restore loads a previously-exported ApprovalState, e.g. from a session
// document at run resume.
func (m *Manager) Restore(s ApprovalState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals = map[string]record{}
	for name, a := range s.Approvals {
		m.approvals[name] = record{Scope: a.Scope, ApprovedAt: a.ApprovedAt, ApprovedBy: a.ApprovedBy, ExpiresAt: a.ExpiresAt}
	}
	m.allow = toSet(s.Allowlist)
	m.block = toSet(s.Blocklist)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

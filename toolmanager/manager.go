// Package toolmanager implements the ToolManager: tool registry, argument
// validation, permission gating, idempotency caching, circuit breaking,
// concurrency admission, timeouts, retries, and audit events — the ten-step
// execution pipeline of spec §4.2. Grounded on the teacher's
// pkg/agent/llmagent/flow.go handleToolCalls/callToolWithCallbacks dispatch
// and pkg/tool/tool.go's Tool/CallableTool contracts, with the idempotency
// cache, retry policy, and circuit breaker newly built (the teacher has no
// direct equivalent) using the libraries named in SPEC_FULL.md §4.2.
package toolmanager

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/agentloop/errs"
	"github.com/kadirpekel/agentloop/hook"
	"github.com/kadirpekel/agentloop/permission"
	"github.com/kadirpekel/agentloop/tool"
)

// AuditFunc receives one pipeline event (spec §4.2 step 10 plus §6's
// tool:* audit events).
type AuditFunc func(event string, fields map[string]any)

// registration is one registered tool plus its derived execution state.
type registration struct {
	name    string // namespaced, sanitized
	impl    tool.Callable
	stream  tool.Streaming // nil if not a streaming tool
	enabled bool
	sem     *semaphore.Weighted
	breaker *circuitBreaker
	schema  *jsonschema.Schema
}

type cacheEntry struct {
	result    tool.Result
	expiresAt time.Time
}

// Manager is the ToolManager.
type Manager struct {
	mu    sync.RWMutex
	tools map[string]*registration

	globalBlockingLock sync.Mutex
	cache               *lru.Cache[string, cacheEntry]
	audit                AuditFunc
	hooks                *hook.Manager
	now                  func() time.Time
}

// Config configures a new Manager.
type Config struct {
	// CacheSize bounds the idempotency cache's global LRU entry count
	// (spec §5: "subject to a global LRU cap").
	CacheSize int
	Audit     AuditFunc
	// Hooks, if set, is run at the approve:tool point (spec §4.6) whenever
	// a call reaches DecisionNeedsApproval, before the approval callback is
	// invoked — letting an embedder audit or veto the pending approval.
	Hooks *hook.Manager
}

func New(cfg Config) (*Manager, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("toolmanager: creating idempotency cache: %w", err)
	}
	return &Manager{
		tools: map[string]*registration{},
		cache: cache,
		audit: cfg.Audit,
		hooks: cfg.Hooks,
		now:   time.Now,
	}, nil
}

// RegisterOpts mirrors spec §4.2's register(tool, opts{namespace?,enabled?,permission?}).
type RegisterOpts struct {
	Namespace  string
	Enabled    *bool // nil = true
	Permission *tool.Permission
}

// Register adds a tool, applying namespacing and name sanitation.
func (m *Manager) Register(impl tool.Callable, opts RegisterOpts) (string, error) {
	d := impl.Descriptor()
	name := d.Name
	if opts.Namespace != "" {
		name = opts.Namespace + "." + name
	}
	name = tool.SanitizeName(name)

	sch, err := compileSchema(name, d.ParametersJSON)
	if err != nil {
		return "", fmt.Errorf("toolmanager: compiling schema for %q: %w", name, err)
	}

	enabled := true
	if opts.Enabled != nil {
		enabled = *opts.Enabled
	}

	var sem *semaphore.Weighted
	if d.Concurrency.MaxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(d.Concurrency.MaxConcurrent))
	}

	reg := &registration{
		name:    name,
		impl:    impl,
		enabled: enabled,
		sem:     sem,
		breaker: newCircuitBreaker(0, 0),
		schema:  sch,
	}
	if st, ok := impl.(tool.Streaming); ok {
		reg.stream = st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tools[name]; exists {
		return "", fmt.Errorf("toolmanager: tool %q already registered", name)
	}
	m.tools[name] = reg
	return name, nil
}

// RegisterToolset registers every tool a Toolset lists (spec §2's
// Toolset/Predicate combinators, e.g. an MCP server's or plugin bundle's
// tool list) whose name passes filter, namespaced under ts.Name() (joined
// with opts.Namespace, if also set). A nil filter behaves like
// tool.AllowAll(). Returns the namespaced names actually registered.
func (m *Manager) RegisterToolset(ctx context.Context, ts tool.Toolset, filter tool.Predicate, opts RegisterOpts) ([]string, error) {
	if filter == nil {
		filter = tool.AllowAll()
	}
	tools, err := ts.Tools(ctx)
	if err != nil {
		return nil, fmt.Errorf("toolmanager: listing toolset %q: %w", ts.Name(), err)
	}

	namespace := ts.Name()
	if opts.Namespace != "" {
		namespace = opts.Namespace + "." + namespace
	}

	var registered []string
	for _, impl := range tools {
		d := impl.Descriptor()
		if !filter(d.Name) {
			continue
		}
		subOpts := opts
		subOpts.Namespace = namespace
		name, err := m.Register(impl, subOpts)
		if err != nil {
			return registered, err
		}
		registered = append(registered, name)
	}
	return registered, nil
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		return nil, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	url := "mem://tool/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Unregister removes a tool by its (already-namespaced) name.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tools, name)
}

// SetEnabled toggles a registered tool's enabled flag (ToolDisabled path).
func (m *Manager) SetEnabled(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.tools[name]; ok {
		r.enabled = enabled
	}
}

func (m *Manager) lookup(name string) (*registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.tools[name]
	if !ok {
		return nil, errs.New(errs.KindToolNotFound, fmt.Sprintf("tool %q is not registered", name))
	}
	if !r.enabled {
		return nil, errs.New(errs.KindToolDisabled, fmt.Sprintf("tool %q is disabled", name))
	}
	return r, nil
}

// Descriptors returns the Descriptor of every enabled registered tool,
// sorted by name, for advertising to a provider.Port.
func (m *Manager) Descriptors() []tool.Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tools))
	for n, r := range m.tools {
		if r.enabled {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	out := make([]tool.Descriptor, 0, len(names))
	for _, n := range names {
		d := m.tools[n].impl.Descriptor()
		d.Name = n
		out = append(out, d)
	}
	return out
}

func (m *Manager) emit(event string, fields map[string]any) {
	if m.audit != nil {
		m.audit(event, fields)
	}
}

// Execute runs the ten-step pipeline for one call (spec §4.2). permMgr may
// be nil only in tests that do not exercise the permission gate.
func (m *Manager) Execute(ctx context.Context, call tool.Call, permMgr *permission.Manager, approve permission.ApprovalCallback) tool.Result {
	start := m.now()

	reg, err := m.lookup(call.Name)
	if err != nil {
		return errResult(call.ID, err, 0)
	}

	// Step 2: argument parse & validate.
	if reg.schema != nil {
		instance, uerr := argsAsInstance(call)
		if uerr != nil {
			return errResult(call.ID, errs.Wrap(errs.KindInvalidArguments, "arguments are not valid JSON", uerr), m.since(start))
		}
		if verr := reg.schema.Validate(instance); verr != nil {
			return errResult(call.ID, errs.Wrap(errs.KindInvalidArguments, firstViolation(verr), verr), m.since(start))
		}
	}

	// Step 3: permission gate.
	if permMgr != nil {
		check := permMgr.Check(reg.name, call.Arguments)
		switch check.Decision {
		case permission.DecisionBlocked:
			m.emit("tool:denied", map[string]any{"tool": reg.name})
			return errResult(call.ID, errs.New(errs.KindToolBlocked, check.Reason), m.since(start))
		case permission.DecisionNeedsApproval:
			if m.hooks != nil {
				if herr := m.hooks.Run(ctx, hook.ApproveTool, check.Approval); herr != nil {
					return errResult(call.ID, herr, m.since(start))
				}
			}
			cb := approve
			if cb == nil {
				cb = permMgr.CallbackOrDefault
			}
			dec, aerr := cb(*check.Approval)
			if errors.Is(aerr, permission.ErrApprovalPending) {
				return errResult(call.ID, errs.New(errs.KindApprovalPending, "approval decision is pending"), m.since(start))
			}
			if aerr != nil {
				return errResult(call.ID, errs.Wrap(errs.KindApprovalDenied, "approval callback failed", aerr), m.since(start))
			}
			if rerr := permMgr.Resolve(reg.name, *check.Approval, dec); rerr != nil {
				return errResult(call.ID, errs.Wrap(errs.KindStateCorruption, "failed to persist approval", rerr), m.since(start))
			}
			if !dec.Approved {
				return errResult(call.ID, errs.New(errs.KindApprovalDenied, dec.Reason), m.since(start))
			}
		}
	}

	// Step 4: idempotency cache lookup.
	fp := ""
	d := reg.impl.Descriptor()
	cacheable := d.Idempotency.Safe || d.Idempotency.TTLMS > 0
	if cacheable {
		fp = fingerprint(reg.name, call.Arguments)
		if e, ok := m.cache.Get(fp); ok && m.now().Before(e.expiresAt) {
			m.emit("tool:cache-hit", map[string]any{"tool": reg.name})
			hit := e.result
			hit.ID = call.ID
			hit.CacheHit = true
			return hit
		}
	}

	// Step 5: circuit breaker check.
	if !reg.breaker.allow(m.now()) {
		return errResult(call.ID, errs.New(errs.KindToolCircuitOpen, fmt.Sprintf("circuit open for %q", reg.name)), m.since(start))
	}

	// Step 6: concurrency admission.
	if reg.sem != nil {
		if err := reg.sem.Acquire(ctx, 1); err != nil {
			reg.breaker.recordFailure(m.now())
			return errResult(call.ID, errs.Wrap(errs.KindCancelled, "cancelled while waiting for concurrency slot", err), m.since(start))
		}
		defer reg.sem.Release(1)
	}
	if d.Concurrency.Blocking {
		m.globalBlockingLock.Lock()
		defer m.globalBlockingLock.Unlock()
	}

	m.emit("tool:exec-start", map[string]any{"tool": reg.name})

	// Steps 7-8: timeout + retry, invoking the tool.
	value, execErr := m.invokeWithRetry(ctx, reg, call, d)

	elapsed := m.since(start)
	if execErr != nil {
		reg.breaker.recordFailure(m.now())
		m.emit("tool:exec-done", map[string]any{"tool": reg.name, "ok": false, "duration_ms": elapsed})
		return errResult(call.ID, execErr, elapsed)
	}
	reg.breaker.recordSuccess()

	result := tool.Result{ID: call.ID, OK: true, Value: value, DurationMS: elapsed}

	// Step 9: cache store.
	if cacheable {
		ttl := time.Duration(d.Idempotency.TTLMS) * time.Millisecond
		if ttl <= 0 {
			ttl = 60 * time.Second
		}
		m.cache.Add(fp, cacheEntry{result: result, expiresAt: m.now().Add(ttl)})
	}

	m.emit("tool:exec-done", map[string]any{"tool": reg.name, "ok": true, "duration_ms": elapsed})
	return result
}

func (m *Manager) invokeWithRetry(ctx context.Context, reg *registration, call tool.Call, d tool.Descriptor) (map[string]any, error) {
	timeout := time.Duration(d.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	run := func() (map[string]any, error) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ectx := &tool.ExecContext{Context: cctx, CallID: call.ID}
		v, err := reg.impl.Call(ectx, call.Arguments)
		if err != nil {
			if cctx.Err() != nil {
				return nil, errs.Wrap(errs.KindToolTimeout, "tool timed out", err)
			}
			return nil, errs.Wrap(errs.KindToolExecutionError, "tool returned an error", err)
		}
		return v, nil
	}

	if d.Retry == nil || d.Retry.MaxAttempts <= 1 {
		return run()
	}

	op := func() (map[string]any, error) {
		v, err := run()
		if err != nil && !retryable(err, d.Retry.RetryableKinds) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	}

	var ebOpts []backoff.ExponentialBackOffOpts
	if d.Retry.BackoffInitialMS > 0 {
		ebOpts = append(ebOpts, backoff.WithInitialInterval(time.Duration(d.Retry.BackoffInitialMS)*time.Millisecond))
	}
	if d.Retry.BackoffFactor > 0 {
		ebOpts = append(ebOpts, backoff.WithMultiplier(d.Retry.BackoffFactor))
	}
	eb := backoff.NewExponentialBackOff(ebOpts...)
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(d.Retry.MaxAttempts)),
	)
}

func retryable(err error, kinds []string) bool {
	if len(kinds) == 0 {
		return true
	}
	k := string(errs.KindOf(err))
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func (m *Manager) since(start time.Time) int64 {
	return m.now().Sub(start).Milliseconds()
}

func errResult(id string, err error, durationMS int64) tool.Result {
	return tool.Result{
		ID:         id,
		OK:         false,
		ErrMessage: err.Error(),
		ErrKind:    string(errs.KindOf(err)),
		DurationMS: durationMS,
	}
}

func argsAsInstance(call tool.Call) (any, error) {
	b, err := json.Marshal(call.Arguments)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

func firstViolation(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		return fmt.Sprintf("%s: %s", leaf.InstanceLocation, leaf.Error())
	}
	return err.Error()
}

// fingerprint computes the stable hash used by the idempotency cache: a
// SHA-256 over the tool name and the canonical (sorted-key) JSON encoding
// of the arguments.
func fingerprint(name string, args map[string]any) string {
	canon := canonicalJSON(args)
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalJSON(v any) []byte {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := bytes.NewBufferString("{")
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(canonicalJSON(t[k]))
		}
		buf.WriteByte('}')
		return buf.Bytes()
	case []any:
		buf := bytes.NewBufferString("[")
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(canonicalJSON(e))
		}
		buf.WriteByte(']')
		return buf.Bytes()
	default:
		b, _ := json.Marshal(t)
		return b
	}
}

// ExecuteBatch fans the batch out across goroutines (one per call, bounded
// beyond that by each tool's own registration-level concurrency admission)
// and fans back in with provider-order preserved in the output, per spec
// §4.2: "completions may interleave but the returned slice is reordered."
// Grounded on golang.org/x/sync/errgroup's zero-value Group for the
// fan-out/join, the same library the batch's per-tool admission already
// draws semaphore.Weighted from.
func (m *Manager) ExecuteBatch(ctx context.Context, calls []tool.Call, permMgr *permission.Manager, approve permission.ApprovalCallback) []tool.Result {
	results := make([]tool.Result, len(calls))
	var g errgroup.Group
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			results[i] = m.Execute(ctx, c, permMgr, approve)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

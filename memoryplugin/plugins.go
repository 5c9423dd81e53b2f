package memoryplugin

import (
	"fmt"
	"strings"

	agctx "github.com/kadirpekel/agentloop/context"
)

// WorkingMemoryPlugin is the scratch-pad memory plugin for raw tool output
// and transient notes. Entries stay until they are deleted, evicted by
// Compact, or removed by CleanupRaw or Store.ClearScope; nothing clears
// them automatically at session end.
type WorkingMemoryPlugin struct {
	store *Store
	audit func(event string, fields map[string]any)
}

func NewWorkingMemoryPlugin(audit func(event string, fields map[string]any)) *WorkingMemoryPlugin {
	return &WorkingMemoryPlugin{store: newStore("working_memory"), audit: audit}
}

func (p *WorkingMemoryPlugin) Name() string { return p.store.Name() }

func (p *WorkingMemoryPlugin) Instructions() string {
	keys := p.store.List("")
	if len(keys) == 0 {
		return ""
	}
	return fmt.Sprintf("Working memory holds %d entries. Use retrieve/list/delete tools to inspect them.", len(keys))
}

func (p *WorkingMemoryPlugin) Content() (string, bool) {
	keys := p.store.List("")
	if len(keys) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString("Working memory keys:\n")
	for _, e := range p.store.RetrieveBatch(nil, "*", "") {
		fmt.Fprintf(&b, "- %s: %s\n", e.Key, e.Description)
	}
	return b.String(), true
}

func (p *WorkingMemoryPlugin) TokenSize(est agctx.TokenEstimator) int { return p.store.totalTokens() }
func (p *WorkingMemoryPlugin) Compactable() bool                     { return true }

func (p *WorkingMemoryPlugin) Compact(target int) int {
	return p.store.Compact(target, func(key string) {
		if p.audit != nil {
			p.audit("memory:evict", map[string]any{"plugin": p.Name(), "key": key})
		}
	})
}

func (p *WorkingMemoryPlugin) State() (any, error) { return p.store.snapshot(), nil }

func (p *WorkingMemoryPlugin) Restore(state any) error {
	entries, ok := state.([]Entry)
	if !ok {
		return fmt.Errorf("memoryplugin: unexpected state type %T", state)
	}
	p.store.restore(entries)
	return nil
}

// StoreOffload implements context.OffloadTarget for AlgorithmicToolOffload.
func (p *WorkingMemoryPlugin) StoreOffload(key, description string, value map[string]any) error {
	err := p.store.Store(Entry{Key: key, Description: description, Value: value, Tier: TierRaw, Scope: ScopeSession})
	if err == nil && p.audit != nil {
		p.audit("memory:store", map[string]any{"plugin": p.Name(), "key": key, "offloaded": true})
	}
	return err
}

func (p *WorkingMemoryPlugin) CleanupRaw() int { return p.store.CleanupRaw() }

func (p *WorkingMemoryPlugin) Underlying() *Store { return p.store }

// InContextMemoryPlugin is the durable, deliberately-curated memory plugin
// (findings, plans, facts the embedder wants retained across a session and,
// for scope=persistent entries, across runs via a backing store).
type InContextMemoryPlugin struct {
	store      *Store
	audit      func(event string, fields map[string]any)
	persistent PersistentBackend // optional; backs scope=persistent entries
}

// PersistentBackend is the narrow persistence contract a session store
// satisfies for scope=persistent entries (spec §4.5's "persistent is never
// auto-cleared"). It is intentionally key/value, not vector-similarity: this
// plugin performs exact-key, glob, and tier retrieval only, never semantic
// search, so a relational/file-backed session store is sufficient and no
// vector database client is needed (see DESIGN.md).
type PersistentBackend interface {
	SaveMemoryEntry(namespace string, e Entry) error
	LoadMemoryEntries(namespace string) ([]Entry, error)
	DeleteMemoryEntry(namespace, key string) error
}

func NewInContextMemoryPlugin(audit func(event string, fields map[string]any), backend PersistentBackend) *InContextMemoryPlugin {
	return &InContextMemoryPlugin{store: newStore("in_context_memory"), audit: audit, persistent: backend}
}

func (p *InContextMemoryPlugin) Name() string { return p.store.Name() }

func (p *InContextMemoryPlugin) Instructions() string {
	return "In-context memory holds curated findings and facts for this session. " +
		"Use store(tier=findings|summary) to persist durable conclusions."
}

func (p *InContextMemoryPlugin) Content() (string, bool) {
	entries := p.store.RetrieveBatch(nil, "*", "")
	if len(entries) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString("In-context memory:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", e.Tier, e.Key, e.Description)
	}
	return b.String(), true
}

func (p *InContextMemoryPlugin) TokenSize(est agctx.TokenEstimator) int { return p.store.totalTokens() }
func (p *InContextMemoryPlugin) Compactable() bool                     { return true }

func (p *InContextMemoryPlugin) Compact(target int) int {
	return p.store.Compact(target, func(key string) {
		if p.audit != nil {
			p.audit("memory:evict", map[string]any{"plugin": p.Name(), "key": key})
		}
	})
}

func (p *InContextMemoryPlugin) State() (any, error) { return p.store.snapshot(), nil }

func (p *InContextMemoryPlugin) Restore(state any) error {
	entries, ok := state.([]Entry)
	if !ok {
		return fmt.Errorf("memoryplugin: unexpected state type %T", state)
	}
	p.store.restore(entries)
	return nil
}

// Store adds an entry, mirroring it to the persistent backend when the
// entry's scope is persistent.
func (p *InContextMemoryPlugin) Store(e Entry) error {
	if err := p.store.Store(e); err != nil {
		return err
	}
	if p.audit != nil {
		p.audit("memory:store", map[string]any{"plugin": p.Name(), "key": e.Key})
	}
	if e.Scope.Kind == "persistent" && p.persistent != nil {
		return p.persistent.SaveMemoryEntry(p.Name(), e)
	}
	return nil
}

func (p *InContextMemoryPlugin) Delete(key string) error {
	p.store.Delete(key)
	if p.audit != nil {
		p.audit("memory:delete", map[string]any{"plugin": p.Name(), "key": key})
	}
	if p.persistent != nil {
		return p.persistent.DeleteMemoryEntry(p.Name(), key)
	}
	return nil
}

// LoadPersistent pulls persistent-scoped entries from the backend at
// session start, before the first Assemble call.
func (p *InContextMemoryPlugin) LoadPersistent() error {
	if p.persistent == nil {
		return nil
	}
	entries, err := p.persistent.LoadMemoryEntries(p.Name())
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := p.store.Store(e); err != nil {
			return err
		}
	}
	return nil
}

func (p *InContextMemoryPlugin) Underlying() *Store { return p.store }

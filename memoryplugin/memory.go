// Package memoryplugin implements WorkingMemoryPlugin and
// InContextMemoryPlugin (spec §4.5): plugin-scoped key/value stores with a
// tier system and priority-based eviction. Grounded on the teacher's
// pkg/memory/working.go (WorkingMemoryStrategy contract) and
// pkg/memory/types.go (tier/scope defaulting), generalized from the
// teacher's context-window-filtering strategy into the richer tiered,
// tool-exposed store spec.md describes.
package memoryplugin

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	agctx "github.com/kadirpekel/agentloop/context"
)

// Priority is an entry's eviction priority.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Tier labels a memory entry, implying a key prefix and default priority.
type Tier string

const (
	TierRaw      Tier = "raw"
	TierSummary  Tier = "summary"
	TierFindings Tier = "findings"
)

func (t Tier) defaultPriority() Priority {
	switch t {
	case TierSummary:
		return PriorityNormal
	case TierFindings:
		return PriorityHigh
	default:
		return PriorityLow
	}
}

func (t Tier) prefix() string {
	if t == "" {
		return ""
	}
	return string(t) + "."
}

// Scope controls an entry's lifecycle (spec §4.5).
type Scope struct {
	Kind    string   // "session", "plan", "persistent", "task"
	TaskIDs []string // only set when Kind == "task"
}

var (
	ScopeSession    = Scope{Kind: "session"}
	ScopePlan       = Scope{Kind: "plan"}
	ScopePersistent = Scope{Kind: "persistent"}
)

func ScopeTask(ids ...string) Scope { return Scope{Kind: "task", TaskIDs: ids} }

// Entry is the memory entry record from spec §3.
type Entry struct {
	Key          string
	Description  string
	Value        any
	Scope        Scope
	Priority     Priority
	Pinned       bool
	Tier         Tier
	SizeBytes    int
	TokenEstimate int
	CreatedAt    time.Time
	LastAccess   time.Time
	NeededFor    []string // task ids that must complete before this clears
}

func globToRegexp(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// Store is the shared implementation behind WorkingMemoryPlugin and
// InContextMemoryPlugin: they differ only in name, default tier behavior,
// and which tools they expose.
type Store struct {
	mu      sync.Mutex
	name    string
	entries map[string]*Entry
	est     agctx.TokenEstimator
	onEvict func(key string)
}

func newStore(name string) *Store {
	return &Store{name: name, entries: map[string]*Entry{}, est: agctx.CharEstimator{}}
}

func (s *Store) Name() string { return s.name }

// Store adds or replaces an entry (the "store" tool operation).
func (s *Store) Store(e Entry) error {
	if len(e.Description) > 150 {
		return fmt.Errorf("memoryplugin: description exceeds 150 characters")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Tier != "" && !strings.HasPrefix(e.Key, e.Tier.prefix()) {
		e.Key = e.Tier.prefix() + e.Key
	}
	if e.Priority == 0 && e.Tier != "" {
		e.Priority = e.Tier.defaultPriority()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.LastAccess = e.CreatedAt
	b, _ := marshalSize(e.Value)
	e.SizeBytes = b
	e.TokenEstimate = estimateValueTokens(s.est, e.Value)
	cp := e
	s.entries[e.Key] = &cp
	return nil
}

func marshalSize(v any) (int, error) {
	s := fmt.Sprintf("%v", v)
	return len(s), nil
}

func estimateValueTokens(est agctx.TokenEstimator, v any) int {
	return est.EstimateText(fmt.Sprintf("%v", v))
}

// Retrieve fetches a single key, updating its last-access time.
func (s *Store) Retrieve(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	e.LastAccess = time.Now()
	return *e, true
}

// RetrieveBatch supports exact keys, a glob pattern ("*" only), or a tier.
func (s *Store) RetrieveBatch(keys []string, globPat string, tier Tier) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	now := time.Now()
	match := func(e *Entry) bool {
		if tier != "" && e.Tier != tier {
			return false
		}
		if globPat != "" && !globToRegexp(globPat).MatchString(e.Key) {
			return false
		}
		return true
	}
	if len(keys) > 0 {
		for _, k := range keys {
			if e, ok := s.entries[k]; ok && match(e) {
				e.LastAccess = now
				out = append(out, *e)
			}
		}
		return out
	}
	for _, e := range s.entries {
		if match(e) {
			e.LastAccess = now
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// List returns keys, optionally filtered by tier.
func (s *Store) List(tier Tier) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k, e := range s.entries {
		if tier == "" || e.Tier == tier {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Delete removes a key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// CleanupRaw bulk-deletes every key under the "raw." prefix (working memory only).
func (s *Store) CleanupRaw() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.Tier == TierRaw || strings.HasPrefix(k, "raw.") {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// ClearScope removes every entry matching a scope, used at session end or
// when a task/plan completes.
func (s *Store) ClearScope(kind string, taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.Scope.Kind != kind {
			continue
		}
		if kind == "task" && taskID != "" && !contains(e.Scope.TaskIDs, taskID) {
			continue
		}
		delete(s.entries, k)
		n++
	}
	return n
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// Compact implements the shared eviction policy from spec §4.5: order by
// (pinned ASC, priority ASC, last-access ASC, size DESC), skip pinned,
// remove until freed >= target or only critical entries remain; critical
// entries are removed only in a second pass if still short.
func (s *Store) Compact(target int, onEvict func(key string)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		key string
		e   *Entry
	}
	var candidates []scored
	for k, e := range s.entries {
		if e.Pinned {
			continue
		}
		candidates = append(candidates, scored{k, e})
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].e, candidates[j].e
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.LastAccess.Equal(b.LastAccess) {
			return a.LastAccess.Before(b.LastAccess)
		}
		return a.SizeBytes > b.SizeBytes
	})

	freed := 0
	evict := func(k string, e *Entry) {
		freed += e.TokenEstimate
		delete(s.entries, k)
		if onEvict != nil {
			onEvict(k)
		}
	}

	for _, c := range candidates {
		if freed >= target {
			break
		}
		if c.e.Priority == PriorityCritical {
			continue // second pass only
		}
		evict(c.key, c.e)
	}
	if freed < target {
		for _, c := range candidates {
			if freed >= target {
				break
			}
			if _, exists := s.entries[c.key]; !exists {
				continue
			}
			evict(c.key, c.e)
		}
	}
	return freed
}

func (s *Store) totalTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, e := range s.entries {
		total += e.TokenEstimate
	}
	return total
}

// snapshot/restore support session serialization.
func (s *Store) snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

func (s *Store) restore(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]*Entry{}
	for _, e := range entries {
		cp := e
		s.entries[e.Key] = &cp
	}
}

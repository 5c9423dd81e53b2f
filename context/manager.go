package context

import (
	"fmt"

	"github.com/kadirpekel/agentloop/conversation"
	"github.com/kadirpekel/agentloop/errs"
)

// Budget is the token-budget record from spec §4.4.
type Budget struct {
	ModelContextLimit int
	ReservedOutput    int
	WarningThreshold  float64 // default 0.70
}

func (b Budget) effectiveCap() int {
	capTok := b.ModelContextLimit - b.ReservedOutput
	if capTok < 0 {
		capTok = 0
	}
	return capTok
}

// HistoryMode selects how much conversation history is sent, per spec §4.1.
type HistoryMode string

const (
	HistoryFull      HistoryMode = "full"
	HistoryCompacted HistoryMode = "compacted"
	HistoryHybrid    HistoryMode = "hybrid"
)

// Assembled is the result of Manager.Assemble: everything ready to send to
// the provider.
type Assembled struct {
	SystemInstructions string
	PluginInstructions []string
	Items              []conversation.Item
	PluginContent      []string
	TotalTokens        int
}

// Stats mirrors the teacher's ContextStats (pkg/agent/context_manager.go).
type Stats struct {
	MessageCount    int
	TokenCount      int
	MaxTokens       int
	Utilization     float64
	NeedsReduction  bool
}

// Manager is the ContextManager.
type Manager struct {
	budget           Budget
	estimator        TokenEstimator
	strategy         Strategy
	items            []conversation.Item
	plugins          []Plugin
	system           string
	maxInputMessages int

	// offload is where AlgorithmicToolOffload stores evicted tool results;
	// normally the WorkingMemoryPlugin, set from Config.Offload in New.
	offload OffloadTarget
}

// OffloadTarget receives offloaded entries from AlgorithmicToolOffload.
type OffloadTarget interface {
	StoreOffload(key, description string, value map[string]any) error
}

// Config configures a new Manager (spec §4.4 plus §6's context-level
// configuration surface).
type Config struct {
	Budget    Budget
	Estimator TokenEstimator
	Strategy  Strategy
	System    string
	Offload   OffloadTarget

	// MaxInputMessages bounds the conversation item count Assemble will
	// send to the provider (spec §4.1 step 3). Zero means unbounded.
	MaxInputMessages int
}

func New(cfg Config) *Manager {
	if cfg.Estimator == nil {
		cfg.Estimator = CharEstimator{}
	}
	if cfg.Strategy == nil {
		cfg.Strategy = DefaultRolling{}
	}
	if cfg.Budget.WarningThreshold <= 0 {
		cfg.Budget.WarningThreshold = 0.70
	}
	return &Manager{
		budget:           cfg.Budget,
		estimator:        cfg.Estimator,
		strategy:         cfg.Strategy,
		system:           cfg.System,
		offload:          cfg.Offload,
		maxInputMessages: cfg.MaxInputMessages,
	}
}

func (m *Manager) SetSystem(s string) { m.system = s }

func (m *Manager) AppendItem(item conversation.Item) { m.items = append(m.items, item) }

func (m *Manager) Items() []conversation.Item { return append([]conversation.Item{}, m.items...) }

func (m *Manager) RegisterPlugin(p Plugin) { m.plugins = append(m.plugins, p) }

// Mutator interface implementation, used by Strategy implementations.

func (m *Manager) Plugins() []Plugin { return append([]Plugin{}, m.plugins...) }

func (m *Manager) RemoveMessages(indices []int) {
	remove := make(map[int]bool, len(indices))
	for _, i := range indices {
		remove[i] = true
	}
	var kept []conversation.Item
	for i, it := range m.items {
		if !remove[i] {
			kept = append(kept, it)
		}
	}
	m.items = kept
}

func (m *Manager) CompactPlugin(name string, target int) int {
	for _, p := range m.plugins {
		if p.Name() == name {
			return p.Compact(target)
		}
	}
	return 0
}

func (m *Manager) Estimator() TokenEstimator { return m.estimator }

func (m *Manager) StoreOffload(key, description string, value map[string]any) error {
	if m.offload == nil {
		return nil
	}
	return m.offload.StoreOffload(key, description, value)
}

// currentTokens computes system + plugin-instructions + conversation +
// plugin-content, per spec §4.4 step 1.
func (m *Manager) currentTokens() int {
	total := m.estimator.EstimateText(m.system)
	for _, p := range m.plugins {
		total += m.estimator.EstimateText(p.Instructions())
		total += p.TokenSize(m.estimator)
	}
	total += EstimateItems(m.estimator, m.items)
	return total
}

// Assemble implements spec §4.4's per-iteration assembly algorithm. Before
// token-budget accounting, it applies spec §4.1 step 3's max-input-messages
// trim: if the assembled list exceeds MaxInputMessages, oldest
// non-tool-paired items are dropped first, then whole tool-use/tool-result
// pairs, never splitting one.
func (m *Manager) Assemble() (Assembled, error) {
	if m.maxInputMessages > 0 {
		m.items = TrimToMaxMessages(m.items, m.maxInputMessages)
	}

	capTok := m.budget.effectiveCap()
	current := m.currentTokens()

	if capTok > 0 && float64(current) > m.budget.WarningThreshold*float64(capTok) {
		if float64(current) > m.strategy.Threshold()*float64(capTok) {
			target := current - int(m.budget.WarningThreshold*float64(capTok))
			if target > 0 {
				if _, err := m.strategy.Compact(m, target); err != nil {
					return Assembled{}, fmt.Errorf("context: compaction failed: %w", err)
				}
			}
			current = m.currentTokens()
		}
	}

	if capTok > 0 && current > capTok {
		return Assembled{}, errs.New(errs.KindContextOverflow, "assembled context exceeds the model's effective token cap after compaction")
	}

	var instructions []string
	var content []string
	for _, p := range m.plugins {
		if s := p.Instructions(); s != "" {
			instructions = append(instructions, s)
		}
		if s, ok := p.Content(); ok {
			content = append(content, s)
		}
	}

	return Assembled{
		SystemInstructions: m.system,
		PluginInstructions: instructions,
		Items:              m.Items(),
		PluginContent:      content,
		TotalTokens:        current,
	}, nil
}

// AfterIteration runs consolidation unconditionally (spec §4.4: "runs after
// each iteration and may perform idempotent housekeeping without being
// triggered by thresholds").
func (m *Manager) AfterIteration() (ConsolidateResult, error) {
	return m.strategy.Consolidate(m)
}

// Stats mirrors the teacher's GetContextStats.
func (m *Manager) Stats() Stats {
	capTok := m.budget.effectiveCap()
	current := m.currentTokens()
	util := 0.0
	if capTok > 0 {
		util = float64(current) / float64(capTok)
	}
	return Stats{
		MessageCount:   len(m.items),
		TokenCount:     current,
		MaxTokens:      capTok,
		Utilization:    util,
		NeedsReduction: capTok > 0 && float64(current) > m.budget.WarningThreshold*float64(capTok),
	}
}

// TrimToMaxMessages implements spec §4.1 step 3's max-input-messages trim:
// oldest non-tool-paired items first, then whole pairs, never splitting one.
func TrimToMaxMessages(items []conversation.Item, max int) []conversation.Item {
	if max <= 0 || len(items) <= max {
		return items
	}
	excess := len(items) - max
	remove := map[int]bool{}
	for i := 0; i < len(items) && len(remove) < excess; i++ {
		if !conversation.IsToolPaired(items, i) {
			remove[i] = true
		}
	}
	if len(remove) < excess {
		pairs := conversation.PairIndices(items)
		for _, p := range pairs {
			if len(remove) >= excess {
				break
			}
			if p[1] == 0 {
				continue
			}
			remove[p[0]] = true
			remove[p[1]] = true
		}
	}
	var kept []conversation.Item
	for i, it := range items {
		if !remove[i] {
			kept = append(kept, it)
		}
	}
	return kept
}

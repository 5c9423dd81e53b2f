package context

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kadirpekel/agentloop/conversation"
)

// Mutator is the narrow surface a CompactionStrategy uses to mutate context
// state (spec §4.4: "Strategies are pure... except through the explicit
// mutation calls ctx.removeMessages(indices), ctx.compactPlugin(name,
// target)"). The Manager implements this; strategies never touch Manager
// fields directly.
type Mutator interface {
	Items() []conversation.Item
	RemoveMessages(indices []int)
	Plugins() []Plugin
	CompactPlugin(name string, target int) int
	Estimator() TokenEstimator
	StoreOffload(key, description string, value map[string]any) error
}

// CompactResult is returned by a strategy's Compact call.
type CompactResult struct {
	Freed            int
	MessagesRemoved  int
	PluginsCompacted []string
	Log              []string
}

// ConsolidateResult is returned by a strategy's Consolidate call.
type ConsolidateResult struct {
	Performed    bool
	TokensChanged int
	Actions      []string
}

// Strategy is the compaction strategy contract from spec §4.4.
type Strategy interface {
	Name() string
	Threshold() float64
	Compact(m Mutator, targetTokens int) (CompactResult, error)
	Consolidate(m Mutator) (ConsolidateResult, error)
}

// removeOldestUntil removes oldest non-tool-paired items first, then
// whole tool pairs, never splitting a pair. It is shared by DefaultRolling's
// conversation fallback and AlgorithmicToolOffload's final fallback.
func removeOldestUntil(m Mutator, target int) CompactResult {
	items := m.Items()
	est := m.Estimator()
	res := CompactResult{}

	// Pass 1: non-tool-paired items, oldest first.
	var toRemove []int
	for i := range items {
		if res.Freed >= target {
			break
		}
		if conversation.IsToolPaired(items, i) {
			continue
		}
		toRemove = append(toRemove, i)
		res.Freed += EstimateItem(est, items[i])
	}

	// Pass 2: whole tool-use/tool-result pairs, oldest first.
	if res.Freed < target {
		pairs := conversation.PairIndices(items)
		type pairIdx struct{ use, result int }
		var ordered []pairIdx
		for _, p := range pairs {
			if p[1] == 0 {
				continue // unpaired in-flight call; never remove
			}
			ordered = append(ordered, pairIdx{p[0], p[1]})
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].use < ordered[j].use })
		for _, p := range ordered {
			if res.Freed >= target {
				break
			}
			toRemove = append(toRemove, p.use, p.result)
			res.Freed += EstimateItem(est, items[p.use]) + EstimateItem(est, items[p.result])
		}
	}

	if len(toRemove) > 0 {
		sort.Ints(toRemove)
		m.RemoveMessages(toRemove)
		res.MessagesRemoved = len(toRemove)
		res.Log = append(res.Log, fmt.Sprintf("removed %d items to free ~%d tokens", len(toRemove), res.Freed))
	}
	return res
}

// DefaultRolling compacts in-context/working memory plugins first, then
// falls back to rolling-window removal of oldest conversation items.
type DefaultRolling struct{}

func (DefaultRolling) Name() string      { return "default_rolling" }
func (DefaultRolling) Threshold() float64 { return 0.70 }

func (s DefaultRolling) Compact(m Mutator, target int) (CompactResult, error) {
	res := CompactResult{}
	remaining := target

	// In-context memory first, then working memory (priority order per
	// spec §4.4).
	plugins := orderedByPriority(m.Plugins())
	for _, p := range plugins {
		if remaining <= 0 {
			break
		}
		if !p.Compactable() {
			continue
		}
		freed := m.CompactPlugin(p.Name(), remaining)
		if freed > 0 {
			res.Freed += freed
			remaining -= freed
			res.PluginsCompacted = append(res.PluginsCompacted, p.Name())
			res.Log = append(res.Log, fmt.Sprintf("compacted plugin %s, freed ~%d", p.Name(), freed))
		}
	}

	if remaining > 0 {
		fallback := removeOldestUntil(m, remaining)
		res.Freed += fallback.Freed
		res.MessagesRemoved += fallback.MessagesRemoved
		res.Log = append(res.Log, fallback.Log...)
	}
	return res, nil
}

func (s DefaultRolling) Consolidate(m Mutator) (ConsolidateResult, error) {
	return ConsolidateResult{}, nil // no-op, per spec §4.4
}

// orderedByPriority puts in-context-memory-named plugins ahead of
// working-memory-named ones, matching spec §4.4's stated order, falling
// back to registration order for anything else.
func orderedByPriority(plugins []Plugin) []Plugin {
	out := make([]Plugin, len(plugins))
	copy(out, plugins)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Name()) < rank(out[j].Name())
	})
	return out
}

func rank(name string) int {
	if strings.Contains(name, "in_context") || strings.Contains(name, "incontext") {
		return 0
	}
	if strings.Contains(name, "working") {
		return 1
	}
	return 2
}

// AlgorithmicToolOffload moves oversized tool results into working memory
// before falling back to rolling-window removal.
type AlgorithmicToolOffload struct {
	// ResultSizeThresholdBytes is the serialized-size cutoff above which a
	// tool result is offloaded rather than kept inline. Default 1 KiB.
	ResultSizeThresholdBytes int
	// MaxRetainedPairs caps the number of tool-call pairs kept inline.
	// Default 10.
	MaxRetainedPairs int
}

func (s AlgorithmicToolOffload) Name() string       { return "algorithmic_tool_offload" }
func (s AlgorithmicToolOffload) Threshold() float64 { return 0.75 }

func (s AlgorithmicToolOffload) thresholdBytes() int {
	if s.ResultSizeThresholdBytes > 0 {
		return s.ResultSizeThresholdBytes
	}
	return 1024
}

func (s AlgorithmicToolOffload) maxPairs() int {
	if s.MaxRetainedPairs > 0 {
		return s.MaxRetainedPairs
	}
	return 10
}

func (s AlgorithmicToolOffload) Compact(m Mutator, target int) (CompactResult, error) {
	res := CompactResult{}
	items := m.Items()
	est := m.Estimator()
	pairs := conversation.PairIndices(items)

	type pairInfo struct {
		useIdx, resultIdx int
		toolName          string
		toolUseID         string
		argsSummary       string
		resultText        string
		size              int
	}
	var offloadable []pairInfo
	var allPairs []pairInfo

	for id, p := range pairs {
		if p[1] == 0 {
			continue
		}
		useItem, resItem := items[p[0]], items[p[1]]
		var name, argsSummary, resultText string
		for _, c := range useItem.Message.Content {
			if c.Kind == conversation.ContentToolUse && c.ToolUseID == id {
				name = c.ToolName
				argsSummary = summarizeArgs(c.ToolArgsJSON)
			}
		}
		for _, c := range resItem.Message.Content {
			if c.Kind == conversation.ContentToolResult && c.ToolResultOf == id {
				resultText = c.Text
			}
		}
		info := pairInfo{
			useIdx: p[0], resultIdx: p[1],
			toolName: name, toolUseID: id, argsSummary: argsSummary, resultText: resultText,
			size: len(resultText),
		}
		allPairs = append(allPairs, info)
		if info.size > s.thresholdBytes() {
			offloadable = append(offloadable, info)
		}
	}

	sort.Slice(offloadable, func(i, j int) bool { return offloadable[i].useIdx < offloadable[j].useIdx })
	sort.Slice(allPairs, func(i, j int) bool { return allPairs[i].useIdx < allPairs[j].useIdx })

	var toRemove []int
	remaining := target
	for _, p := range offloadable {
		if remaining <= 0 {
			break
		}
		key := fmt.Sprintf("tool_result.%s.%s", sanitizeKeySegment(p.toolName), idSuffix(p.toolUseID))
		desc := fmt.Sprintf("Result of %s(%s)", p.toolName, p.argsSummary)
		if err := m.StoreOffload(key, desc, map[string]any{"text": p.resultText}); err != nil {
			return res, err
		}
		toRemove = append(toRemove, p.useIdx, p.resultIdx)
		freed := EstimateItem(est, items[p.useIdx]) + EstimateItem(est, items[p.resultIdx])
		remaining -= freed
		res.Freed += freed
		res.Log = append(res.Log, fmt.Sprintf("offloaded %s to %s", p.toolUseID, key))
	}

	// Cap the number of retained pairs by removing oldest excess pairs not
	// already offloaded.
	offloadedIdx := map[int]bool{}
	for _, i := range toRemove {
		offloadedIdx[i] = true
	}
	var stillRetained []pairInfo
	for _, p := range allPairs {
		if !offloadedIdx[p.useIdx] {
			stillRetained = append(stillRetained, p)
		}
	}
	if excess := len(stillRetained) - s.maxPairs(); excess > 0 {
		for _, p := range stillRetained[:excess] {
			toRemove = append(toRemove, p.useIdx, p.resultIdx)
			res.Freed += EstimateItem(est, items[p.useIdx]) + EstimateItem(est, items[p.resultIdx])
		}
		res.Log = append(res.Log, fmt.Sprintf("dropped %d excess tool pairs beyond cap %d", excess, s.maxPairs()))
	}

	if len(toRemove) > 0 {
		sort.Ints(toRemove)
		m.RemoveMessages(toRemove)
		res.MessagesRemoved = len(toRemove)
	}

	if remaining > 0 {
		fallback := removeOldestUntil(m, remaining)
		res.Freed += fallback.Freed
		res.MessagesRemoved += fallback.MessagesRemoved
		res.Log = append(res.Log, fallback.Log...)
	}

	return res, nil
}

func (s AlgorithmicToolOffload) Consolidate(m Mutator) (ConsolidateResult, error) {
	return ConsolidateResult{}, nil
}

func summarizeArgs(raw string) string {
	if len(raw) > 40 {
		return raw[:40] + "..."
	}
	return raw
}

func sanitizeKeySegment(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func idSuffix(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

// Package context implements the ContextManager: the token-budget tracker
// that assembles the per-iteration message list and triggers compaction
// strategies. Grounded on the teacher's pkg/agent/context_manager.go
// (ContextManagerConfig defaulting, PrepareContext/ShouldCompress/
// CompressContext flow) with its tiktoken-backed TokenCounter replaced by
// the character-based estimator spec.md's Non-goals require — see
// DESIGN.md for why pkoukk/tiktoken-go is intentionally not wired here.
package context

import (
	"math"

	"github.com/kadirpekel/agentloop/conversation"
)

// TokenEstimator is the pluggable accounting interface from spec §4.4.
type TokenEstimator interface {
	EstimateText(s string) int
	EstimateImage(detail conversation.ImageDetail, width, height int) int
}

// CharEstimator is the default estimator: ceil(chars/3.5) for text, a
// tile-based approximation for images.
type CharEstimator struct{}

func (CharEstimator) EstimateText(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len(s)) / 3.5))
}

func (CharEstimator) EstimateImage(detail conversation.ImageDetail, width, height int) int {
	if detail == conversation.DetailLow {
		return 85
	}
	if width <= 0 || height <= 0 {
		return 1000
	}
	tiles := math.Ceil(float64(width)/512) * math.Ceil(float64(height)/512)
	return 85 + int(170*tiles)
}

// EstimateItem sums the token cost of every content block in one item.
func EstimateItem(est TokenEstimator, item conversation.Item) int {
	switch item.Kind {
	case conversation.ItemMessage:
		if item.Message == nil {
			return 0
		}
		total := 0
		for _, c := range item.Message.Content {
			total += estimateContent(est, c)
		}
		return total
	case conversation.ItemReasoning:
		if item.Reasoning == nil {
			return 0
		}
		return est.EstimateText(item.Reasoning.Text) + est.EstimateText(item.Reasoning.Summary)
	case conversation.ItemCompactionMarker:
		if item.Marker == nil {
			return 0
		}
		return est.EstimateText(item.Marker.Summary)
	}
	return 0
}

func estimateContent(est TokenEstimator, c conversation.Content) int {
	switch c.Kind {
	case conversation.ContentInputText, conversation.ContentOutputText:
		return est.EstimateText(c.Text)
	case conversation.ContentInputImage:
		return est.EstimateImage(c.ImageDetail, c.ImageWidth, c.ImageHeight)
	case conversation.ContentToolUse:
		return est.EstimateText(c.ToolArgsJSON) + est.EstimateText(c.ToolName)
	case conversation.ContentToolResult:
		return est.EstimateText(c.Text)
	case conversation.ContentThinking:
		return est.EstimateText(c.ThinkingText)
	}
	return 0
}

// EstimateItems sums EstimateItem across a slice.
func EstimateItems(est TokenEstimator, items []conversation.Item) int {
	total := 0
	for _, it := range items {
		total += EstimateItem(est, it)
	}
	return total
}

// Package conversation implements the agentloop conversation data model: a
// tagged sequence of items (messages, reasoning blobs, compaction markers)
// built from tagged content blocks, following the same flat tagged-union
// shape the teacher uses for its own Message/ToolCall/StreamChunk types
// (every variant is a struct field, not a Go interface) so the whole thing
// round-trips through encoding/json without custom marshalers.
package conversation

import "fmt"

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleTool      Role = "tool"
)

// ItemKind tags which variant of Item is populated.
type ItemKind string

const (
	ItemMessage          ItemKind = "message"
	ItemReasoning        ItemKind = "reasoning"
	ItemCompactionMarker ItemKind = "compaction_marker"
)

// Item is a single entry in a conversation. Exactly one of Message,
// Reasoning, or Marker is non-nil, selected by Kind.
type Item struct {
	Kind      ItemKind          `json:"kind"`
	Message   *Message          `json:"message,omitempty"`
	Reasoning *ReasoningBlock   `json:"reasoning,omitempty"`
	Marker    *CompactionMarker `json:"marker,omitempty"`
}

// Message is a role-tagged ordered list of content blocks.
type Message struct {
	Role    Role      `json:"role"`
	Content []Content `json:"content"`
}

// ReasoningBlock is an opaque provider-signed thinking blob. Signed blocks
// must persist across round-trips; unsigned blocks are drop-only (a
// compaction or a new provider call may discard them without ceremony).
type ReasoningBlock struct {
	Text      string `json:"text"`
	Summary   string `json:"summary,omitempty"`
	Signature string `json:"signature,omitempty"`
}

func (r *ReasoningBlock) Signed() bool { return r.Signature != "" }

// CompactionMarker records that a range of prior items was summarized or
// removed by a CompactionStrategy.
type CompactionMarker struct {
	Summary string `json:"summary"`
	Elided  int    `json:"elided"`
}

// ContentKind tags which variant of Content is populated.
type ContentKind string

const (
	ContentInputText  ContentKind = "input_text"
	ContentOutputText ContentKind = "output_text"
	ContentInputImage ContentKind = "input_image"
	ContentToolUse    ContentKind = "tool_use"
	ContentToolResult ContentKind = "tool_result"
	ContentThinking   ContentKind = "thinking"
)

// ImageDetail controls the teacher's tile-based token-estimation path for
// image content (see context.CharEstimator).
type ImageDetail string

const (
	DetailLow  ImageDetail = "low"
	DetailHigh ImageDetail = "high"
	DetailAuto ImageDetail = "auto"
)

// Content is one tagged content block inside a Message.
type Content struct {
	Kind ContentKind `json:"kind"`

	// InputText / OutputText
	Text string `json:"text,omitempty"`

	// InputImage
	ImageURL    string      `json:"image_url,omitempty"`
	ImageDetail ImageDetail `json:"image_detail,omitempty"`
	ImageWidth  int         `json:"image_width,omitempty"`
	ImageHeight int         `json:"image_height,omitempty"`

	// ToolUse
	ToolUseID    string         `json:"tool_use_id,omitempty"`
	ToolName     string         `json:"tool_name,omitempty"`
	ToolArgsJSON string         `json:"tool_args_json,omitempty"`
	ToolArgs     map[string]any `json:"tool_args,omitempty"`

	// ToolResult
	ToolResultOf     string   `json:"tool_result_of,omitempty"` // matching ToolUseID
	ToolResultIsErr  bool     `json:"tool_result_is_error,omitempty"`
	ToolResultImages []string `json:"tool_result_images,omitempty"`

	// Thinking
	ThinkingText      string `json:"thinking_text,omitempty"`
	ThinkingSignature string `json:"thinking_signature,omitempty"`
}

func NewMessage(role Role, blocks ...Content) Item {
	return Item{Kind: ItemMessage, Message: &Message{Role: role, Content: blocks}}
}

func TextMessage(role Role, text string) Item {
	kind := ContentInputText
	if role == RoleAssistant {
		kind = ContentOutputText
	}
	return NewMessage(role, Content{Kind: kind, Text: text})
}

func ToolUse(id, name, rawArgs string, args map[string]any) Content {
	return Content{Kind: ContentToolUse, ToolUseID: id, ToolName: name, ToolArgsJSON: rawArgs, ToolArgs: args}
}

func ToolResult(id, text string, isErr bool, images ...string) Content {
	return Content{Kind: ContentToolResult, ToolResultOf: id, Text: text, ToolResultIsErr: isErr, ToolResultImages: images}
}

// ToolUseIDs returns the ids of every ToolUse block across all Message items.
func ToolUseIDs(items []Item) []string {
	var ids []string
	for _, it := range items {
		if it.Kind != ItemMessage || it.Message == nil {
			continue
		}
		for _, c := range it.Message.Content {
			if c.Kind == ContentToolUse {
				ids = append(ids, c.ToolUseID)
			}
		}
	}
	return ids
}

// ToolResultIDs returns the ids every ToolResult block answers.
func ToolResultIDs(items []Item) []string {
	var ids []string
	for _, it := range items {
		if it.Kind != ItemMessage || it.Message == nil {
			continue
		}
		for _, c := range it.Message.Content {
			if c.Kind == ContentToolResult {
				ids = append(ids, c.ToolResultOf)
			}
		}
	}
	return ids
}

// CheckPairing verifies the invariant from spec §3/§8: every ToolUse has a
// matching ToolResult, unless allowUnpaired is set (mid-iteration state,
// where the loop has not yet appended results for the last batch).
func CheckPairing(items []Item, allowUnpaired bool) error {
	uses := map[string]bool{}
	for _, id := range ToolUseIDs(items) {
		if uses[id] {
			return fmt.Errorf("duplicate tool-use id %q", id)
		}
		uses[id] = true
	}
	results := map[string]bool{}
	for _, id := range ToolResultIDs(items) {
		if !uses[id] {
			return fmt.Errorf("tool-result %q has no matching tool-use", id)
		}
		if results[id] {
			return fmt.Errorf("duplicate tool-result for id %q", id)
		}
		results[id] = true
	}
	if allowUnpaired {
		return nil
	}
	for id := range uses {
		if !results[id] {
			return fmt.Errorf("tool-use %q has no matching tool-result", id)
		}
	}
	return nil
}

// PairIndices returns the item index of the ToolUse message and the item
// index of the matching ToolResult message for every tool-use id, so a
// compaction strategy can remove both together. An unpaired tool-use (the
// in-flight iteration case) is included with its result index left at 0.
func PairIndices(items []Item) map[string][2]int {
	out := map[string][2]int{}
	for i, it := range items {
		if it.Kind != ItemMessage || it.Message == nil {
			continue
		}
		for _, c := range it.Message.Content {
			if c.Kind == ContentToolUse {
				pair := out[c.ToolUseID]
				pair[0] = i
				out[c.ToolUseID] = pair
			}
		}
	}
	for i, it := range items {
		if it.Kind != ItemMessage || it.Message == nil {
			continue
		}
		for _, c := range it.Message.Content {
			if c.Kind == ContentToolResult {
				pair, ok := out[c.ToolResultOf]
				if !ok {
					continue
				}
				pair[1] = i
				out[c.ToolResultOf] = pair
			}
		}
	}
	return out
}

// PendingToolUses returns every ToolUse block with no matching ToolResult,
// in conversation order — the tool calls left outstanding when a run was
// paused mid-iteration (spec §4.3/§9's HITL long-running approval case).
func PendingToolUses(items []Item) []Content {
	results := map[string]bool{}
	for _, id := range ToolResultIDs(items) {
		results[id] = true
	}
	var out []Content
	for _, it := range items {
		if it.Kind != ItemMessage || it.Message == nil {
			continue
		}
		for _, c := range it.Message.Content {
			if c.Kind == ContentToolUse && !results[c.ToolUseID] {
				out = append(out, c)
			}
		}
	}
	return out
}

// IsToolPaired reports whether the item at idx carries a ToolUse or
// ToolResult block, whether or not its counterpart is present, so a removal
// pass never splits a pair or drops an in-flight call.
func IsToolPaired(items []Item, idx int) bool {
	if idx < 0 || idx >= len(items) {
		return false
	}
	it := items[idx]
	if it.Kind != ItemMessage || it.Message == nil {
		return false
	}
	for _, c := range it.Message.Content {
		if c.Kind == ContentToolUse || c.Kind == ContentToolResult {
			return true
		}
	}
	return false
}

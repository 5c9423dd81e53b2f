// Package provider defines the narrow boundary between the agentic loop
// and an LLM backend (spec §6). Grounded on the teacher's pkg/llms
// package (read before deletion): its Message/StreamChunk tagged-union
// types and its LLMProvider interface's Generate/StreamGenerate split,
// generalized here to this module's conversation.Item representation and
// the error taxonomy in errs.
package provider

import (
	"context"
	"fmt"

	"github.com/kadirpekel/agentloop/conversation"
	"github.com/kadirpekel/agentloop/errs"
	"github.com/kadirpekel/agentloop/tool"
)

// Request is one provider call: the assembled conversation plus the tool
// descriptors to advertise.
type Request struct {
	System       string
	Items        []conversation.Item
	Tools        []tool.Descriptor
	MaxOutputTok int
	Temperature  float64
}

// ToolCallRequest is a single tool invocation the model asked for.
type ToolCallRequest struct {
	ID        string
	ToolName  string
	ArgsJSON  string
}

// Response is one complete (non-streaming) provider turn.
type Response struct {
	Text         string
	Reasoning    string
	ToolCalls    []ToolCallRequest
	StopReason   string // "end_turn", "tool_use", "max_tokens", ...
	InputTokens  int
	OutputTokens int
}

// StreamEvent is one chunk of a streaming provider turn, mirroring the
// agentloop package's own typed streaming events but scoped to what a
// provider backend actually produces.
type StreamEvent struct {
	Kind      string // "text:delta","reasoning:delta","tool:args-delta","tool:call-start","tool:call-done","done"
	TextDelta string
	ToolCall  *ToolCallRequest
	Response  *Response // set only on Kind == "done"
}

// Port is the interface a concrete provider SDK implements to plug into
// the loop. Concrete implementations (OpenAI, Anthropic, Gemini, Ollama
// SDKs) are out of scope for this module per spec §1; only the interface
// and a scripted test double (provider.Mock) live here.
type Port interface {
	Generate(ctx context.Context, req Request) (Response, error)
	StreamGenerate(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error)
}

// ErrorKind classifies a provider-side failure for the loop's retry logic
// (spec §6).
type ErrorKind string

const (
	ErrAuth          ErrorKind = "auth"
	ErrRateLimit     ErrorKind = "rate_limit"
	ErrContextLength ErrorKind = "context_length"
	ErrTransport     ErrorKind = "transport"
	ErrInvalidReq    ErrorKind = "invalid_request"
	ErrServer        ErrorKind = "server"
)

// Classify maps an ErrorKind to this module's error taxonomy, so the loop
// can apply the same retry/circuit-breaker reasoning it applies to tool
// errors.
func Classify(kind ErrorKind, message string, cause error) error {
	var ek errs.Kind
	switch kind {
	case ErrAuth:
		ek = errs.KindProviderAuth
	case ErrRateLimit:
		ek = errs.KindProviderRateLimit
	case ErrContextLength:
		ek = errs.KindProviderContextLength
	case ErrTransport:
		ek = errs.KindProviderTransport
	case ErrInvalidReq:
		ek = errs.KindProviderInvalidReq
	default:
		ek = errs.KindProviderServer
	}
	if cause != nil {
		return errs.Wrap(ek, message, cause)
	}
	return errs.New(ek, message)
}

// Retryable reports whether a classified provider error should be retried
// by the loop (rate limits and transport errors are; auth, invalid
// request, and context-length overflows are not).
func Retryable(err error) bool {
	switch errs.KindOf(err) {
	case errs.KindProviderRateLimit, errs.KindProviderTransport, errs.KindProviderServer:
		return true
	default:
		return false
	}
}

func (r ToolCallRequest) String() string {
	return fmt.Sprintf("%s(%s)#%s", r.ToolName, r.ArgsJSON, r.ID)
}

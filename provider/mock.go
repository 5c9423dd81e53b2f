package provider

import (
	"context"
	"sync"
)

// Mock is a scripted Port test double used by this module's own tests and
// by embedders writing tests against the loop (spec §8: "a scripted
// provider test double ships with the module"). Script is consumed
// in order across successive Generate/StreamGenerate calls.
type Mock struct {
	mu     sync.Mutex
	script []Response
	errs   []error
	calls  []Request
}

// NewMock builds a Mock that replays responses in order, one per call.
func NewMock(responses ...Response) *Mock {
	return &Mock{script: responses}
}

// WithError makes the call at index i (0-based) return err instead of a
// scripted response.
func (m *Mock) WithError(i int, err error) *Mock {
	for len(m.errs) <= i {
		m.errs = append(m.errs, nil)
	}
	m.errs[i] = err
	return m
}

func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request{}, m.calls...)
}

func (m *Mock) Generate(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.calls)
	m.calls = append(m.calls, req)
	if idx < len(m.errs) && m.errs[idx] != nil {
		return Response{}, m.errs[idx]
	}
	if idx >= len(m.script) {
		return Response{StopReason: "end_turn"}, nil
	}
	return m.script[idx], nil
}

func (m *Mock) StreamGenerate(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error) {
	evCh := make(chan StreamEvent, 8)
	errCh := make(chan error, 1)
	go func() {
		defer close(evCh)
		defer close(errCh)
		resp, err := m.Generate(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		if resp.Text != "" {
			evCh <- StreamEvent{Kind: "text:delta", TextDelta: resp.Text}
		}
		for _, tc := range resp.ToolCalls {
			tc := tc
			evCh <- StreamEvent{Kind: "tool:call-start", ToolCall: &tc}
		}
		evCh <- StreamEvent{Kind: "done", Response: &resp}
	}()
	return evCh, errCh
}

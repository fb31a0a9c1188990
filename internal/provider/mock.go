package provider

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

// MockStep scripts one completion. Either Text or Calls is set; a step
// with Calls produces an assistant reply requesting those tools.
type MockStep struct {
	Text  string
	Calls []chat.ToolCall
	// Err aborts the completion with a provider error.
	Err error
}

// Mock is a scripted Provider for tests. Steps are consumed in order;
// when the script runs out the last step repeats. Structured
// completions consume the Structured queue instead.
type Mock struct {
	mu         sync.Mutex
	steps      []MockStep
	pos        int
	structured []json.RawMessage
	structPos  int

	// Requests records every request received, in order.
	Requests []Request
}

// NewMock creates a scripted provider.
func NewMock(steps ...MockStep) *Mock {
	return &Mock{steps: steps}
}

// QueueStructured queues a structured-output payload.
func (m *Mock) QueueStructured(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structured = append(m.structured, json.RawMessage(raw))
}

// Name implements Provider.
func (m *Mock) Name() string { return "mock" }

func (m *Mock) nextStep(req Request) MockStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if len(m.steps) == 0 {
		return MockStep{Text: "ok"}
	}
	step := m.steps[m.pos]
	if m.pos < len(m.steps)-1 {
		m.pos++
	}
	return step
}

// Complete implements Provider.
func (m *Mock) Complete(ctx context.Context, req Request) (*Response, error) {
	step := m.nextStep(req)
	if step.Err != nil {
		return nil, step.Err
	}
	return stepResponse(step), nil
}

// CompleteStructured implements Provider.
func (m *Mock) CompleteStructured(ctx context.Context, req Request, schema json.RawMessage) (*StructuredResponse, error) {
	step := m.nextStep(req)
	if step.Err != nil {
		return nil, step.Err
	}

	m.mu.Lock()
	var data json.RawMessage
	if m.structPos < len(m.structured) {
		data = m.structured[m.structPos]
		m.structPos++
	} else {
		data = json.RawMessage(step.Text)
	}
	m.mu.Unlock()

	resp := stepResponse(step)
	resp.Message.Text = string(data)
	return &StructuredResponse{Data: data, Response: *resp}, nil
}

// Stream implements Provider, replaying the step as a chunk script:
// content split into two fragments, each tool call as a header delta
// followed by argument fragments.
func (m *Mock) Stream(ctx context.Context, req Request) (Stream, error) {
	step := m.nextStep(req)
	if step.Err != nil {
		return nil, step.Err
	}

	s := newChanStream(ctx)
	go func() {
		defer s.finish(nil)
		block := -1

		if step.Text != "" {
			block++
			mid := len(step.Text) / 2
			s.send(&chat.StreamingChunk{Index: block, Start: true, Content: step.Text[:mid]})
			if mid < len(step.Text) {
				s.send(&chat.StreamingChunk{Index: block, Content: step.Text[mid:]})
			}
		}

		for i, call := range step.Calls {
			block++
			s.send(&chat.StreamingChunk{
				Index: block,
				Start: true,
				ToolCalls: []chat.ToolCallDelta{{
					Index:    i,
					CallID:   call.ID,
					ToolName: call.Name,
				}},
			})
			args := call.Arguments
			mid := len(args) / 2
			s.send(&chat.StreamingChunk{
				Index:     block,
				ToolCalls: []chat.ToolCallDelta{{Index: i, ArgumentsFragment: args[:mid]}},
			})
			s.send(&chat.StreamingChunk{
				Index:     block,
				ToolCalls: []chat.ToolCallDelta{{Index: i, ArgumentsFragment: args[mid:]}},
			})
		}

		finish := "stop"
		if len(step.Calls) > 0 {
			finish = "tool_calls"
		}
		s.send(&chat.StreamingChunk{Index: block, FinishReason: finish})
	}()
	return s, nil
}

func stepResponse(step MockStep) *Response {
	msg := chat.Assistant(step.Text)
	msg.ToolCalls = append(msg.ToolCalls, step.Calls...)
	finish := "stop"
	if len(step.Calls) > 0 {
		finish = "tool_calls"
	}
	return &Response{
		Message:      msg,
		FinishReason: finish,
		Usage:        chat.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

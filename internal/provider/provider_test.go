package provider

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

func TestCollector_AssemblesContentAndCalls(t *testing.T) {
	mock := NewMock(MockStep{
		Text: "thinking",
		Calls: []chat.ToolCall{
			{ID: "call_a", Name: "get_current_time", Arguments: `{}`},
			{ID: "call_b", Name: "fraud_query_tool", Arguments: `{"state":"Texas"}`},
		},
	})

	stream, err := mock.Stream(context.Background(), Request{Model: "gpt-4o-mini"})
	require.NoError(t, err)

	var forwarded []*chat.StreamingChunk
	collector := &Collector{Forward: func(c *chat.StreamingChunk) { forwarded = append(forwarded, c) }}
	resp, err := collector.Collect(stream)
	require.NoError(t, err)

	assert.Equal(t, "thinking", resp.Message.Text)
	require.Len(t, resp.Message.ToolCalls, 2)
	assert.Equal(t, "call_a", resp.Message.ToolCalls[0].ID)
	assert.Equal(t, "get_current_time", resp.Message.ToolCalls[0].Name)
	assert.JSONEq(t, `{"state":"Texas"}`, resp.Message.ToolCalls[1].Arguments)
	assert.Equal(t, "tool_calls", resp.FinishReason)

	// Every chunk was forwarded, in order, ending with the terminal one.
	require.NotEmpty(t, forwarded)
	assert.Equal(t, "tool_calls", forwarded[len(forwarded)-1].FinishReason)
}

func TestCollector_FragmentsConcatenatePerIndex(t *testing.T) {
	s := newChanStream(context.Background())
	go func() {
		s.send(&chat.StreamingChunk{Index: 0, Start: true, ToolCalls: []chat.ToolCallDelta{{Index: 0, CallID: "c1", ToolName: "t"}}})
		s.send(&chat.StreamingChunk{Index: 0, ToolCalls: []chat.ToolCallDelta{{Index: 0, ArgumentsFragment: `{"a"`}}})
		s.send(&chat.StreamingChunk{Index: 0, ToolCalls: []chat.ToolCallDelta{{Index: 0, ArgumentsFragment: `:1}`}}})
		s.send(&chat.StreamingChunk{FinishReason: "tool_calls"})
		s.finish(nil)
	}()

	resp, err := (&Collector{}).Collect(s)
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, `{"a":1}`, resp.Message.ToolCalls[0].Arguments)
	assert.Equal(t, "c1", resp.Message.ToolCalls[0].ID)
}

func TestMock_StructuredQueue(t *testing.T) {
	mock := NewMock(MockStep{Text: "ignored"})
	mock.QueueStructured(`{"summary":"s","sentiment":"neutral","flagged":false}`)

	resp, err := mock.CompleteStructured(context.Background(), Request{}, json.RawMessage(`{}`))
	require.NoError(t, err)

	var parsed struct {
		Summary   string `json:"summary"`
		Sentiment string `json:"sentiment"`
		Flagged   bool   `json:"flagged"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &parsed))
	assert.Equal(t, "neutral", parsed.Sentiment)
	assert.False(t, parsed.Flagged)
}

func TestError_Retryability(t *testing.T) {
	assert.True(t, NewError("openai", ErrorCodeRateLimit, "slow down", nil).Retryable())
	assert.True(t, NewError("openai", ErrorCodeServerError, "boom", nil).Retryable())
	assert.False(t, NewError("openai", ErrorCodeInvalidRequest, "bad", nil).Retryable())
	assert.False(t, NewError("openai", ErrorCodeAuthentication, "denied", nil).Retryable())
}

func TestMock_ScriptAdvancesAndRepeats(t *testing.T) {
	mock := NewMock(
		MockStep{Calls: []chat.ToolCall{{ID: "c", Name: "t", Arguments: `{}`}}},
		MockStep{Text: "final"},
	)

	first, err := mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.NotEmpty(t, first.Message.ToolCalls)

	second, err := mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "final", second.Message.Text)

	// The script is exhausted; the last step repeats.
	third, err := mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "final", third.Message.Text)
	assert.Len(t, mock.Requests, 3)
}

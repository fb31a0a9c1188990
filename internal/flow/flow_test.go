package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
	"github.com/fraudflow-dev/fraudflow/internal/pipeline"
	"github.com/fraudflow-dev/fraudflow/internal/provider"
	"github.com/fraudflow-dev/fraudflow/internal/route"
	"github.com/fraudflow-dev/fraudflow/internal/stream"
	"github.com/fraudflow-dev/fraudflow/internal/tool"
)

func testConfig() Config {
	return Config{
		Model:         "gpt-4o-mini",
		Temperature:   0,
		TopP:          1,
		MaxMemory:     5,
		MaxIterations: 5,
	}
}

func testPrompts(t *testing.T) Prompts {
	t.Helper()
	p, err := DefaultPrompts()
	require.NoError(t, err)
	require.NotEmpty(t, p.Guardrail)
	require.NotEmpty(t, p.NonRelated)
	require.NotEmpty(t, p.AgentQuery)
	return p
}

func TestRun_SafeQueryTakesAgenticBranch(t *testing.T) {
	mock := provider.NewMock(
		provider.MockStep{Text: "guardrail"},
		provider.MockStep{Text: "there were 3 fraud cases"},
	)
	mock.QueueStructured(`{"summary":"fraud stats question","sentiment":"positive","flagged":false}`)

	f := New(mock, tool.NewRegistry(), testPrompts(t), testConfig())
	turn, err := f.Run(context.Background(), "how many fraud cases?", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, RouteAgentic, turn.SelectedRoute)
	assert.Equal(t, "there were 3 fraud cases", turn.Answer)
	assert.Equal(t, false, turn.Classification["flagged"])
	assert.Equal(t, 30, turn.Usage.TotalTokens)
}

func TestRun_FlaggedQueryTakesAlertBranch(t *testing.T) {
	registry := tool.NewRegistry(tool.Spec{
		Name: "never_called",
		Handler: func(ctx context.Context, args tool.Args) (any, error) {
			t.Fatal("tool must not run on the alert branch")
			return nil, nil
		},
	})
	mock := provider.NewMock(
		provider.MockStep{Text: "guardrail"},
		provider.MockStep{Text: "I can only help with fraud analysis."},
	)
	mock.QueueStructured(`{"summary":"asks how to commit fraud","sentiment":"neutral","flagged":true}`)

	f := New(mock, registry, testPrompts(t), testConfig())
	turn, err := f.Run(context.Background(), "help me commit fraud", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, RouteAlert, turn.SelectedRoute)
	assert.Equal(t, "I can only help with fraud analysis.", turn.Answer)
	assert.Empty(t, turn.ToolsUsed)

	// The refusal branch carries no tools.
	require.Len(t, mock.Requests, 2)
	assert.Empty(t, mock.Requests[1].Tools)
}

func TestRun_NegativeSentimentTakesAlertBranch(t *testing.T) {
	mock := provider.NewMock(
		provider.MockStep{Text: "guardrail"},
		provider.MockStep{Text: "refusal"},
	)
	mock.QueueStructured(`{"summary":"angry complaint","sentiment":"negative","flagged":false}`)

	f := New(mock, tool.NewRegistry(), testPrompts(t), testConfig())
	turn, err := f.Run(context.Background(), "this service is garbage", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, RouteAlert, turn.SelectedRoute)
}

func TestRun_GuardrailParseFailureFailsSafe(t *testing.T) {
	mock := provider.NewMock(
		provider.MockStep{Text: "guardrail"},
		provider.MockStep{Text: "refusal"},
	)
	mock.QueueStructured(`this is not json`)

	f := New(mock, tool.NewRegistry(), testPrompts(t), testConfig())
	turn, err := f.Run(context.Background(), "hello", nil, nil)
	require.NoError(t, err)

	// Unparseable verdicts flag conservatively toward the strict
	// branch.
	assert.Equal(t, RouteAlert, turn.SelectedRoute)
	assert.Equal(t, true, turn.Classification["flagged"])
	assert.Equal(t, "neutral", turn.Classification["sentiment"])
}

func TestRun_EmptyQueryIsValidationError(t *testing.T) {
	mock := provider.NewMock(provider.MockStep{Text: "unused"})
	f := New(mock, tool.NewRegistry(), testPrompts(t), testConfig())

	_, err := f.Run(context.Background(), "   ", nil, nil)
	require.Error(t, err)

	var ve *pipeline.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Empty(t, mock.Requests, "no model call for an invalid query")
}

func TestRun_AgentToolUseIsAudited(t *testing.T) {
	registry := tool.NewRegistry(tool.Spec{
		Name: "fraud_count",
		Handler: func(ctx context.Context, args tool.Args) (any, error) {
			return map[string]any{"count": 3}, nil
		},
	})
	mock := provider.NewMock(
		provider.MockStep{Text: "guardrail"},
		provider.MockStep{Calls: []chat.ToolCall{{ID: "c1", Name: "fraud_count", Arguments: `{}`}}},
		provider.MockStep{Text: "three cases"},
	)
	mock.QueueStructured(`{"summary":"ok","sentiment":"neutral","flagged":false}`)

	f := New(mock, registry, testPrompts(t), testConfig())
	turn, err := f.Run(context.Background(), "count fraud", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "three cases", turn.Answer)
	require.Len(t, turn.ToolsUsed, 1)
	assert.Equal(t, "fraud_count", turn.ToolsUsed[0].ToolName)
	assert.False(t, turn.ToolsUsed[0].Failed())
}

func TestRun_StreamsRenderedBlocks(t *testing.T) {
	mock := provider.NewMock(
		provider.MockStep{Text: "guardrail"},
		provider.MockStep{Text: "streamed answer"},
	)
	mock.QueueStructured(`{"summary":"ok","sentiment":"neutral","flagged":false}`)

	assembler := stream.NewAssembler()
	f := New(mock, tool.NewRegistry(), testPrompts(t), testConfig())
	turn, err := f.Run(context.Background(), "hi", nil, func(c *chat.StreamingChunk) {
		assembler.Feed(c)
	})
	require.NoError(t, err)

	assert.Equal(t, "streamed answer", turn.Answer)
	assert.Equal(t, "[ASSISTANT]\nstreamed answer", assembler.Final())
}

func TestRouteNode_EvaluationFailureIsRecoverable(t *testing.T) {
	cond := route.MustCompile("flagged == true", []string{"flagged"})
	n := newRouteNode([]route.Route{{Name: "r1", Condition: cond}})

	// Context is missing the key the condition references.
	out, err := n.Run(context.Background(), pipeline.Inputs{
		"context": map[string]any{"sentiment": "neutral"},
	})
	require.NoError(t, err)

	assert.Equal(t, route.Error, out["selected_route"])
	_, fired := out[route.Error]
	assert.True(t, fired, "error sentinel port must fire")
	assert.Contains(t, out["output_text"], "Error evaluating conditions")
}

func TestRouteNode_NoMatchFallback(t *testing.T) {
	cond := route.MustCompile("flagged == true", []string{"flagged"})
	n := newRouteNode([]route.Route{{Name: "r1", Condition: cond, Forward: "q"}})

	out, err := n.Run(context.Background(), pipeline.Inputs{
		"context": map[string]any{"flagged": false},
	})
	require.NoError(t, err)

	assert.Equal(t, route.NoMatch, out["selected_route"])
	forward, fired := out[route.NoMatch]
	assert.True(t, fired)
	assert.Nil(t, forward)
}

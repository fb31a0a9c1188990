package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudflow-dev/fraudflow/internal/store"
)

func TestArgs_TypedAccess(t *testing.T) {
	args := Args{
		"name":   "bob",
		"limit":  float64(7), // JSON numbers decode as float64
		"score":  0.5,
		"strict": true,
		"extra":  map[string]any{"k": "v"},
	}

	assert.Equal(t, "bob", args.String("name"))
	assert.Equal(t, 7, args.Int("limit"))
	assert.Equal(t, 0.5, args.Float("score"))
	assert.True(t, args.Bool("strict"))
	assert.Equal(t, map[string]any{"k": "v"}, args.Map("extra"))

	// Missing or mistyped keys yield zero values.
	assert.Equal(t, "", args.String("limit"))
	assert.Equal(t, 0, args.Int("name"))
	assert.False(t, args.Bool("missing"))
}

func TestSpec_JSONSchema(t *testing.T) {
	spec := Spec{
		Name: "demo",
		Schema: Schema{
			"query": {Type: "string", Description: "the query", Required: true},
			"limit": {Type: "number"},
		},
	}

	var doc struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(spec.JSONSchema(), &doc))
	assert.Equal(t, "object", doc.Type)
	assert.Equal(t, "string", doc.Properties["query"]["type"])
	assert.Equal(t, "number", doc.Properties["limit"]["type"])
	assert.Equal(t, []string{"query"}, doc.Required)
}

func TestRegistry_InvokeRoundTrip(t *testing.T) {
	reg := NewRegistry(Spec{
		Name:   "echo",
		Schema: Schema{},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return map[string]any{"reply": "X"}, nil
		},
	})

	result := reg.Invoke(context.Background(), "echo", map[string]any{"a": float64(1)})
	assert.Equal(t, "echo", result.ToolName)
	assert.Equal(t, map[string]any{"a": float64(1)}, result.Arguments)
	assert.Equal(t, map[string]any{"reply": "X"}, result.Result)
	assert.Empty(t, result.Error)
	assert.False(t, result.Failed())
}

func TestRegistry_InvokeErrorBecomesResult(t *testing.T) {
	reg := NewRegistry(Spec{
		Name: "broken",
		Handler: func(ctx context.Context, args Args) (any, error) {
			return nil, errors.New("backend unavailable")
		},
	})

	result := reg.Invoke(context.Background(), "broken", nil)
	assert.True(t, result.Failed())
	assert.Equal(t, "backend unavailable", result.Error)
	assert.Nil(t, result.Result)
}

func TestRegistry_UnknownTool(t *testing.T) {
	reg := NewRegistry()
	result := reg.Invoke(context.Background(), "nope", nil)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "tool not found")
}

func TestRegistry_SpecsKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry(
		Spec{Name: "b"},
		Spec{Name: "a"},
		Spec{Name: "c"},
	)
	var names []string
	for _, s := range reg.Specs() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
}

func seedStore() *store.MemoryStore {
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	return store.NewMemoryStore(
		store.Transaction{ID: "t1", Time: base, Category: "grocery", State: "Texas", Amount: 42.50, IsFraud: false},
		store.Transaction{ID: "t2", Time: base, Category: "online", State: "Texas", Amount: 930.00, IsFraud: true},
		store.Transaction{ID: "t3", Time: base, Category: "online", State: "California", Amount: 1250.75, IsFraud: true},
	)
}

func TestFraudQueryTool(t *testing.T) {
	spec := FraudQuery(seedStore())
	reg := NewRegistry(spec)

	result := reg.Invoke(context.Background(), "fraud_query_tool", map[string]any{
		"is_fraud": true,
		"limit":    float64(1),
	})
	require.False(t, result.Failed())

	out := result.Result.(map[string]any)
	assert.Equal(t, 2, out["total"])
	rows := out["transactions"].([]store.Transaction)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsFraud)
}

func TestFraudSummaryTool(t *testing.T) {
	reg := NewRegistry(FraudSummary(seedStore()))

	result := reg.Invoke(context.Background(), "fraud_summary_tool", map[string]any{
		"state": "Texas",
	})
	require.False(t, result.Failed())

	sum := result.Result.(*store.Summary)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.FraudCount)
	assert.InDelta(t, 972.50, sum.TotalAmount, 0.001)
	assert.Equal(t, 1, sum.ByCategory["grocery"])
}

func TestDocsSearchTool(t *testing.T) {
	index := store.NewMemoryIndex(
		"Card-present fraud requires the physical card.",
		"Card-not-present fraud dominates online transactions. Online fraud grows yearly.",
	)
	reg := NewRegistry(DocsSearch(index))

	result := reg.Invoke(context.Background(), "docs_search_tool", map[string]any{
		"query": "online fraud",
	})
	require.False(t, result.Failed())

	out := result.Result.(map[string]any)
	pages := out["page_text"].(map[string]string)
	assert.Contains(t, pages["2"], "Card-not-present")

	// Missing query is a handler error surfaced in the result.
	result = reg.Invoke(context.Background(), "docs_search_tool", map[string]any{})
	assert.True(t, result.Failed())
}

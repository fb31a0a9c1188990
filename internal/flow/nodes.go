package flow

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fraudflow-dev/fraudflow/internal/agentloop"
	"github.com/fraudflow-dev/fraudflow/internal/chat"
	"github.com/fraudflow-dev/fraudflow/internal/observability"
	"github.com/fraudflow-dev/fraudflow/internal/pipeline"
	"github.com/fraudflow-dev/fraudflow/internal/provider"
	"github.com/fraudflow-dev/fraudflow/internal/route"
	"github.com/fraudflow-dev/fraudflow/internal/tool"
)

// Classification is the guardrail's screening verdict, the routing
// context for the rest of the flow.
type Classification struct {
	Summary   string `json:"summary"`
	Sentiment string `json:"sentiment"`
	Flagged   bool   `json:"flagged"`
}

// Context exposes the verdict as the route evaluation context.
func (c Classification) Context() map[string]any {
	return map[string]any{
		"summary":   c.Summary,
		"sentiment": c.Sentiment,
		"flagged":   c.Flagged,
	}
}

// classificationSchema is the structured-output contract the guardrail
// model reply must satisfy.
var classificationSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"summary": {"type": "string", "description": "Brief summary of the user query"},
		"sentiment": {"type": "string", "enum": ["positive", "neutral", "negative"]},
		"flagged": {"type": "boolean", "description": "Whether the input should be flagged for review"}
	},
	"required": ["summary", "sentiment", "flagged"],
	"additionalProperties": false
}`)

// startNode validates and normalizes the inbound query.
type startNode struct {
	query string
}

func newStartNode(query string) *startNode {
	return &startNode{query: query}
}

func (n *startNode) Name() string          { return "start" }
func (n *startNode) InputPorts() []pipeline.Port { return nil }
func (n *startNode) OutputPorts() []string { return []string{"query_text"} }

func (n *startNode) Run(ctx context.Context, in pipeline.Inputs) (pipeline.Outputs, error) {
	trimmed := strings.TrimSpace(n.query)
	if trimmed == "" {
		return nil, &pipeline.ValidationError{Node: "start", Port: "query_text", Reason: "query must not be empty"}
	}
	return pipeline.Outputs{"query_text": trimmed}, nil
}

// guardrailNode screens the query with a single structured model call.
// A reply that fails to parse falls back to a conservative verdict so
// routing fails safe toward the stricter branch.
type guardrailNode struct {
	provider provider.Provider
	prompt   string
	cfg      Config
	history  []chat.Message
}

func newGuardrailNode(p provider.Provider, prompt string, cfg Config, history []chat.Message) *guardrailNode {
	return &guardrailNode{provider: p, prompt: prompt, cfg: cfg, history: history}
}

func (n *guardrailNode) Name() string { return "guardrail" }
func (n *guardrailNode) InputPorts() []pipeline.Port {
	return []pipeline.Port{{Name: "user_prompt", Required: true}}
}
func (n *guardrailNode) OutputPorts() []string {
	return []string{"classification", "output_text", "usage"}
}

func (n *guardrailNode) Run(ctx context.Context, in pipeline.Inputs) (pipeline.Outputs, error) {
	userPrompt, ok := in["user_prompt"].(string)
	if !ok {
		return nil, &pipeline.ValidationError{Node: "guardrail", Port: "user_prompt", Reason: "expected string"}
	}

	msgs := make([]chat.Message, 0, len(n.history)+2)
	msgs = append(msgs, chat.System(n.prompt))
	msgs = append(msgs, historyWindow(n.history, n.cfg.MaxMemory)...)
	msgs = append(msgs, chat.User(userPrompt))

	resp, err := n.provider.CompleteStructured(ctx, provider.Request{
		Model:       n.cfg.Model,
		Messages:    msgs,
		Temperature: n.cfg.Temperature,
		TopP:        n.cfg.TopP,
	}, classificationSchema)
	if err != nil {
		return nil, err
	}

	var verdict Classification
	if err := json.Unmarshal(resp.Data, &verdict); err != nil {
		verdict = Classification{
			Summary:   err.Error(),
			Sentiment: "neutral",
			Flagged:   true,
		}
	}

	return pipeline.Outputs{
		"classification": verdict.Context(),
		"output_text":    string(resp.Data),
		"usage":          resp.Usage,
	}, nil
}

// routeNode picks the branch for the turn. Exactly one route port
// fires; the unmatched branch never runs.
type routeNode struct {
	routes []route.Route
}

func newRouteNode(routes []route.Route) *routeNode {
	return &routeNode{routes: routes}
}

func (n *routeNode) Name() string { return "router" }
func (n *routeNode) InputPorts() []pipeline.Port {
	return []pipeline.Port{{Name: "context", Required: true}}
}

func (n *routeNode) OutputPorts() []string {
	ports := []string{"output_text", "output_value", "selected_route", route.NoMatch, route.Error}
	for _, r := range n.routes {
		ports = append(ports, r.Name)
	}
	return ports
}

func (n *routeNode) Run(ctx context.Context, in pipeline.Inputs) (pipeline.Outputs, error) {
	evalCtx, ok := in["context"].(map[string]any)
	if !ok {
		return nil, &pipeline.ValidationError{Node: "router", Port: "context", Reason: "expected map context"}
	}

	sel := route.Evaluate(evalCtx, n.routes)
	observability.RecordRouteSelection(sel.Route)

	out := pipeline.Outputs{
		"output_text":    sel.OutputText,
		"output_value":   sel.OutputValue,
		"selected_route": sel.Route,
	}
	out[sel.Route] = sel.Forward
	return out, nil
}

// llmNode answers the query, optionally with tools through the agent
// loop. Both branches of the flow are llmNode instances differing only
// in prompt and registry.
type llmNode struct {
	name     string
	provider provider.Provider
	registry *tool.Registry
	prompt   string
	cfg      Config
	history  []chat.Message
	sink     agentloop.Sink
}

func newChatNode(name string, p provider.Provider, prompt string, cfg Config, history []chat.Message, sink agentloop.Sink) *llmNode {
	// No tools and a single round trip: a plain streamed completion.
	plain := cfg
	plain.MaxIterations = 1
	return &llmNode{
		name:     name,
		provider: p,
		registry: tool.NewRegistry(),
		prompt:   prompt,
		cfg:      plain,
		history:  history,
		sink:     sink,
	}
}

func newAgentNode(name string, p provider.Provider, registry *tool.Registry, prompt string, cfg Config, history []chat.Message, sink agentloop.Sink) *llmNode {
	return &llmNode{
		name:     name,
		provider: p,
		registry: registry,
		prompt:   prompt,
		cfg:      cfg,
		history:  history,
		sink:     sink,
	}
}

func (n *llmNode) Name() string { return n.name }
func (n *llmNode) InputPorts() []pipeline.Port {
	return []pipeline.Port{{Name: "user_prompt", Required: true}}
}
func (n *llmNode) OutputPorts() []string {
	return []string{"output_text", "tools_used", "usage", "last_message"}
}

func (n *llmNode) Run(ctx context.Context, in pipeline.Inputs) (pipeline.Outputs, error) {
	userPrompt, ok := in["user_prompt"].(string)
	if !ok {
		return nil, &pipeline.ValidationError{Node: n.name, Port: "user_prompt", Reason: "expected string"}
	}

	msgs := make([]chat.Message, 0, len(n.history)+2)
	msgs = append(msgs, chat.System(n.prompt))
	msgs = append(msgs, historyWindow(n.history, n.cfg.MaxMemory)...)
	msgs = append(msgs, chat.User(userPrompt))

	loop := agentloop.New(n.provider, n.registry,
		agentloop.WithModel(n.cfg.Model),
		agentloop.WithMaxIterations(n.cfg.MaxIterations),
		agentloop.WithSampling(n.cfg.Temperature, n.cfg.TopP),
		agentloop.WithMaxTokens(n.cfg.MaxTokens),
		agentloop.WithSink(n.sink),
	)

	result, err := loop.Run(ctx, msgs)
	if err != nil {
		return nil, err
	}

	return pipeline.Outputs{
		"output_text":  result.Output,
		"tools_used":   result.ToolsUsed,
		"usage":        result.Usage,
		"last_message": result.LastMessage,
	}, nil
}

// answerNode terminates a branch, passing the final answer through.
type answerNode struct {
	name string
}

func newAnswerNode(name string) *answerNode {
	return &answerNode{name: name}
}

func (n *answerNode) Name() string { return n.name }
func (n *answerNode) InputPorts() []pipeline.Port {
	return []pipeline.Port{{Name: "final_answer", Required: true}}
}
func (n *answerNode) OutputPorts() []string { return []string{"final_answer"} }

func (n *answerNode) Run(ctx context.Context, in pipeline.Inputs) (pipeline.Outputs, error) {
	return pipeline.Outputs{"final_answer": in["final_answer"]}, nil
}

func historyWindow(history []chat.Message, max int) []chat.Message {
	if max <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

// Package flow builds and runs the per-request question-answering
// graph: a start node normalizes the query, a guardrail screens it, a
// conditional router sends it to either a refusal reply or the
// tool-using agent, and an answer node terminates the chosen branch.
package flow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fraudflow-dev/fraudflow/internal/agentloop"
	"github.com/fraudflow-dev/fraudflow/internal/chat"
	"github.com/fraudflow-dev/fraudflow/internal/observability"
	"github.com/fraudflow-dev/fraudflow/internal/pipeline"
	"github.com/fraudflow-dev/fraudflow/internal/provider"
	"github.com/fraudflow-dev/fraudflow/internal/route"
	"github.com/fraudflow-dev/fraudflow/internal/tool"
)

// Route names for the two branches of the flow.
const (
	// RouteAlert handles flagged or negative queries with a refusal.
	RouteAlert = "alert"

	// RouteAgentic handles safe queries with the tool-using agent.
	RouteAgentic = "agentic"
)

// routeContextKeys are the only identifiers route conditions may
// reference.
var routeContextKeys = []string{"summary", "sentiment", "flagged"}

var (
	alertCondition   = route.MustCompile("flagged == true || sentiment == 'negative'", routeContextKeys)
	agenticCondition = route.MustCompile("flagged == false && sentiment != 'negative'", routeContextKeys)
)

// Config carries the generation settings the flow is built with.
type Config struct {
	Model         string
	Temperature   float32
	TopP          float32
	MaxMemory     int
	MaxIterations int
	MaxTokens     int
}

// Flow builds one question-answering pipeline per request. The flow
// itself is long-lived and stateless; per-request state (query,
// history, chunk sink) lives only in the pipeline instance.
type Flow struct {
	provider provider.Provider
	registry *tool.Registry
	prompts  Prompts
	cfg      Config
}

// New creates a flow over the given provider and tool registry.
func New(p provider.Provider, registry *tool.Registry, prompts Prompts, cfg Config) *Flow {
	return &Flow{provider: p, registry: registry, prompts: prompts, cfg: cfg}
}

// TurnResult is the outcome of one flow run.
type TurnResult struct {
	// Answer is the final reply text. When no branch ran (the router
	// hit a sentinel) it holds the router's explanatory text.
	Answer string

	// SelectedRoute names the branch taken, or a sentinel.
	SelectedRoute string

	// Classification is the guardrail verdict the routing was based
	// on.
	Classification map[string]any

	// ToolsUsed is the agent branch's audit trail, empty for the
	// refusal branch.
	ToolsUsed []chat.ToolResult

	Usage   chat.Usage
	Elapsed time.Duration
}

// Run executes one turn. history is the session's retained
// conversation; sink, when non-nil, receives every streaming chunk the
// chosen branch produces.
func (f *Flow) Run(ctx context.Context, query string, history []chat.Message, sink agentloop.Sink) (*TurnResult, error) {
	ctx, span := observability.StartSpan(ctx, "flow.run",
		trace.WithAttributes(attribute.String("llm.model", f.cfg.Model)),
	)
	defer span.End()

	start := time.Now()

	p, err := f.build(query, history, sink)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("build flow: %w", err)
	}

	results, err := p.Run(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	turn := &TurnResult{Elapsed: time.Since(start)}

	if out, ok := results["guardrail"]; ok {
		if c, ok := out["classification"].(map[string]any); ok {
			turn.Classification = c
		}
		turn.Usage.Add(usageOf(out))
	}
	if out, ok := results["router"]; ok {
		if name, ok := out["selected_route"].(string); ok {
			turn.SelectedRoute = name
		}
		if text, ok := out["output_text"].(string); ok {
			turn.Answer = text
		}
	}
	for _, branch := range []string{"general_llm", "agent_llm"} {
		out, ok := results[branch]
		if !ok {
			continue
		}
		if text, ok := out["output_text"].(string); ok {
			turn.Answer = text
		}
		if used, ok := out["tools_used"].([]chat.ToolResult); ok {
			turn.ToolsUsed = used
		}
		turn.Usage.Add(usageOf(out))
	}

	span.SetAttributes(
		attribute.String("flow.route", turn.SelectedRoute),
		attribute.Int("llm.total_tokens", turn.Usage.TotalTokens),
	)
	return turn, nil
}

// build assembles the per-request pipeline. Topology is fixed; only
// the query, history, and sink vary.
func (f *Flow) build(query string, history []chat.Message, sink agentloop.Sink) (*pipeline.Pipeline, error) {
	routes := []route.Route{
		{
			Name:           RouteAlert,
			Condition:      alertCondition,
			OutputTemplate: "{{ output_text }}",
			Description:    "Route when input is flagged or sentiment is negative.",
			Forward:        query,
		},
		{
			Name:           RouteAgentic,
			Condition:      agenticCondition,
			OutputTemplate: "{{ output_text }}",
			Description:    "Route when input is safe and sentiment is not negative.",
			Forward:        query,
		},
	}

	p := pipeline.New()
	nodes := []pipeline.Node{
		newStartNode(query),
		newGuardrailNode(f.provider, f.prompts.Guardrail, f.cfg, history),
		newRouteNode(routes),
		newChatNode("general_llm", f.provider, f.prompts.NonRelated, f.cfg, history, sink),
		newAgentNode("agent_llm", f.provider, f.registry, f.prompts.AgentQuery, f.cfg, history, sink),
		newAnswerNode("answer_general"),
		newAnswerNode("answer_agent"),
	}
	for _, n := range nodes {
		if err := p.Add(n); err != nil {
			return nil, err
		}
	}

	conns := [][2]string{
		{"start.query_text", "guardrail.user_prompt"},
		{"guardrail.classification", "router.context"},
		{"router." + RouteAlert, "general_llm.user_prompt"},
		{"router." + RouteAgentic, "agent_llm.user_prompt"},
		{"general_llm.output_text", "answer_general.final_answer"},
		{"agent_llm.output_text", "answer_agent.final_answer"},
	}
	for _, c := range conns {
		if err := p.Connect(c[0], c[1]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func usageOf(out pipeline.Outputs) chat.Usage {
	u, _ := out["usage"].(chat.Usage)
	return u
}

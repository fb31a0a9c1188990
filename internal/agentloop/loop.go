// Package agentloop runs the bounded tool-calling conversation between
// the model and the tool registry. Each round trip either produces a
// final assistant reply or a batch of tool calls; tool outcomes are fed
// back as tool messages and the loop continues until the model stops
// calling tools or the iteration budget runs out.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
	"github.com/fraudflow-dev/fraudflow/internal/observability"
	"github.com/fraudflow-dev/fraudflow/internal/provider"
	"github.com/fraudflow-dev/fraudflow/internal/tool"
)

const defaultMaxIterations = 10

// Sink receives chunks as the loop produces them: the model's own
// streaming chunks plus one synthesized chunk per tool result.
type Sink func(*chat.StreamingChunk)

// Loop drives one agentic turn against a provider and a tool registry.
type Loop struct {
	provider provider.Provider
	registry *tool.Registry

	model         string
	maxIterations int
	temperature   float32
	topP          float32
	maxTokens     int
	sink          Sink
}

// Option configures a Loop.
type Option func(*Loop)

// WithModel sets the model identifier sent to the provider.
func WithModel(model string) Option {
	return func(l *Loop) { l.model = model }
}

// WithMaxIterations bounds the number of model round trips.
func WithMaxIterations(max int) Option {
	return func(l *Loop) {
		if max > 0 {
			l.maxIterations = max
		}
	}
}

// WithSampling sets temperature and top_p for every model call.
func WithSampling(temperature, topP float32) Option {
	return func(l *Loop) {
		l.temperature = temperature
		l.topP = topP
	}
}

// WithMaxTokens caps completion length per model call.
func WithMaxTokens(n int) Option {
	return func(l *Loop) { l.maxTokens = n }
}

// WithSink attaches a chunk sink. With a sink the loop streams every
// model call; without one it uses plain completions.
func WithSink(sink Sink) Option {
	return func(l *Loop) { l.sink = sink }
}

// New creates a loop over the given provider and registry.
func New(p provider.Provider, registry *tool.Registry, opts ...Option) *Loop {
	l := &Loop{
		provider:      p,
		registry:      registry,
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result is the outcome of one agentic turn.
type Result struct {
	// Output is the final assistant text. When the iteration budget is
	// exhausted it holds the last assistant content seen.
	Output string

	// ToolsUsed records every tool invocation in execution order,
	// failures included.
	ToolsUsed []chat.ToolResult

	// Iterations counts model round trips taken.
	Iterations int

	Usage   chat.Usage
	Elapsed time.Duration

	// LastMessage is the final assistant message, with any pending
	// tool calls when the budget ran out mid-flight.
	LastMessage chat.Message
}

// Run executes the turn. The returned Result is valid whenever err is
// nil, including when the iteration budget was exhausted.
func (l *Loop) Run(ctx context.Context, messages []chat.Message) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, "agentloop.run",
		trace.WithAttributes(
			attribute.String("llm.model", l.model),
			attribute.Int("agent.max_iterations", l.maxIterations),
		),
	)
	defer span.End()

	start := time.Now()
	msgs := append([]chat.Message(nil), messages...)
	result := &Result{}

	// nextBlock keeps chunk indexes strictly increasing across
	// iterations so downstream rendering sees one contiguous turn.
	nextBlock := 0

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		resp, err := l.roundTrip(ctx, msgs, &nextBlock)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("model call failed at iteration %d: %w", iteration, err)
		}
		result.Iterations = iteration + 1

		usage := resp.Usage
		if usage.TotalTokens == 0 {
			usage = estimateUsage(l.model, msgs, resp.Message)
		}
		result.Usage.Add(usage)

		msgs = append(msgs, resp.Message)
		result.LastMessage = resp.Message
		if resp.Message.Text != "" {
			result.Output = resp.Message.Text
		}

		if len(resp.Message.ToolCalls) == 0 {
			l.finish(result, start)
			span.SetAttributes(attribute.Int("agent.iterations", result.Iterations))
			return result, nil
		}

		for _, call := range resp.Message.ToolCalls {
			res := l.invoke(ctx, call)
			result.ToolsUsed = append(result.ToolsUsed, res)
			l.emitToolResult(&nextBlock, res)
			msgs = append(msgs, chat.FromTool(res))
		}
	}

	log.Printf("agent loop hit iteration budget (%d), returning last content", l.maxIterations)
	span.SetAttributes(
		attribute.Int("agent.iterations", result.Iterations),
		attribute.Bool("agent.budget_exhausted", true),
	)
	l.finish(result, start)
	return result, nil
}

// roundTrip performs one model call, streaming when a sink is attached.
func (l *Loop) roundTrip(ctx context.Context, msgs []chat.Message, nextBlock *int) (*provider.Response, error) {
	req := provider.Request{
		Model:       l.model,
		Messages:    msgs,
		Tools:       l.registry.Specs(),
		Temperature: l.temperature,
		TopP:        l.topP,
		MaxTokens:   l.maxTokens,
	}

	if l.sink == nil {
		return l.provider.Complete(ctx, req)
	}

	stream, err := l.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	base := *nextBlock
	high := base - 1
	collector := &provider.Collector{
		Forward: func(chunk *chat.StreamingChunk) {
			out := *chunk
			out.Index = base + chunk.Index
			// The finish marker is synthesized once for the whole
			// turn, not per round trip.
			out.FinishReason = ""
			if len(chunk.ToolCalls) > 0 {
				deltas := make([]chat.ToolCallDelta, len(chunk.ToolCalls))
				for i, d := range chunk.ToolCalls {
					d.Index += base
					deltas[i] = d
				}
				out.ToolCalls = deltas
			}
			if out.Index > high {
				high = out.Index
			}
			if out.Content == "" && out.Reasoning == "" && len(out.ToolCalls) == 0 && out.ToolResult == nil {
				return
			}
			l.sink(&out)
		},
	}

	resp, err := collector.Collect(stream)
	if err != nil {
		return nil, err
	}
	*nextBlock = high + 1
	return resp, nil
}

func (l *Loop) invoke(ctx context.Context, call chat.ToolCall) chat.ToolResult {
	args := make(map[string]any)
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			res := chat.ToolResult{
				CallID:   call.ID,
				ToolName: call.Name,
				Error:    fmt.Sprintf("invalid tool arguments: %v", err),
			}
			observability.RecordToolCall(call.Name, "error", 0)
			return res
		}
	}

	began := time.Now()
	res := l.registry.Invoke(ctx, call.Name, args)
	res.CallID = call.ID

	status := "ok"
	if res.Failed() {
		status = "error"
	}
	observability.RecordToolCall(call.Name, status, time.Since(began))
	return res
}

func (l *Loop) emitToolResult(nextBlock *int, res chat.ToolResult) {
	if l.sink == nil {
		return
	}
	l.sink(&chat.StreamingChunk{
		Index:      *nextBlock,
		Start:      true,
		ToolResult: &res,
	})
	*nextBlock++
}

func (l *Loop) finish(result *Result, start time.Time) {
	result.Elapsed = time.Since(start)

	observability.RecordAgentIterations(result.Iterations)
	observability.RecordTokens("prompt", result.Usage.PromptTokens)
	observability.RecordTokens("completion", result.Usage.CompletionTokens)

	if l.sink != nil {
		l.sink(&chat.StreamingChunk{Index: -1, FinishReason: "stop"})
	}
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

// OpenAI implements Provider on the OpenAI chat-completions API.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(apiKey string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	return &OpenAI{client: openai.NewClient(apiKey)}, nil
}

// NewOpenAIWithClient creates a provider around an existing client,
// useful for pointing at compatible endpoints in tests.
func NewOpenAIWithClient(client *openai.Client) *OpenAI {
	return &OpenAI{client: client}
}

// Name implements Provider.
func (p *OpenAI) Name() string { return "openai" }

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError("openai", ErrorCodeServerError, "no choices in response", nil)
	}
	return p.parseChoice(resp.Choices[0], resp.Usage), nil
}

// CompleteStructured implements Provider.
func (p *OpenAI) CompleteStructured(ctx context.Context, req Request, schema json.RawMessage) (*StructuredResponse, error) {
	apiReq := p.buildRequest(req)
	apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "response",
			Schema: schema,
			Strict: true,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError("openai", ErrorCodeServerError, "no choices in response", nil)
	}
	parsed := p.parseChoice(resp.Choices[0], resp.Usage)
	return &StructuredResponse{
		Data:     json.RawMessage(parsed.Message.Text),
		Response: *parsed,
	}, nil
}

// Stream implements Provider. The returned stream maps the wire deltas
// onto StreamingChunk values with block indexes and start markers.
func (p *OpenAI) Stream(ctx context.Context, req Request) (Stream, error) {
	apiReq := p.buildRequest(req)
	apiReq.Stream = true

	upstream, err := p.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, p.wrapError(err)
	}
	return &openaiStream{upstream: upstream, blockIndex: -1}, nil
}

func (p *OpenAI) buildRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, toWireMessage(m))
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	for _, spec := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.JSONSchema(),
			},
		})
	}
	return apiReq
}

func toWireMessage(m chat.Message) openai.ChatCompletionMessage {
	switch m.Role {
	case chat.RoleTool:
		content := m.Text
		if m.ToolResult != nil && m.ToolResult.Error == "" {
			if raw, err := json.Marshal(m.ToolResult.Result); err == nil {
				content = string(raw)
			}
		}
		wire := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleTool,
			Content: content,
		}
		if m.ToolResult != nil {
			wire.ToolCallID = m.ToolResult.CallID
			wire.Name = m.ToolResult.ToolName
		}
		return wire
	case chat.RoleAssistant:
		wire := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: m.Text,
		}
		for _, call := range m.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		return wire
	case chat.RoleSystem:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Text}
	default:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text}
	}
}

func (p *OpenAI) parseChoice(choice openai.ChatCompletionChoice, usage openai.Usage) *Response {
	msg := chat.Assistant(choice.Message.Content)
	for _, call := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return &Response{
		Message:      msg,
		FinishReason: string(choice.FinishReason),
		Usage: chat.Usage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
	}
}

func (p *OpenAI) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ErrorCodeUnknown
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest:
			code = ErrorCodeInvalidRequest
		case http.StatusUnauthorized, http.StatusForbidden:
			code = ErrorCodeAuthentication
		case http.StatusTooManyRequests:
			code = ErrorCodeRateLimit
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			code = ErrorCodeServerError
		}
		return NewError("openai", code, apiErr.Message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError("openai", ErrorCodeTimeout, err.Error(), err)
	}
	return NewError("openai", ErrorCodeUnknown, err.Error(), err)
}

// openaiStream adapts the wire stream to chat.StreamingChunk values,
// tracking block boundaries so Start and Index follow the assembler's
// contract: a new index with Start=true whenever the reply switches to
// a new content or tool-call block.
type openaiStream struct {
	upstream *openai.ChatCompletionStream

	blockIndex int
	inContent  bool
	// seenCalls maps wire tool-call indexes to assigned block indexes.
	seenCalls map[int]int
}

// Recv implements Stream.
func (s *openaiStream) Recv() (*chat.StreamingChunk, error) {
	resp, err := s.upstream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, NewError("openai", ErrorCodeServerError, err.Error(), err)
	}
	if len(resp.Choices) == 0 {
		// Keep-alive frame; skip to the next one.
		return s.Recv()
	}

	choice := resp.Choices[0]
	chunk := &chat.StreamingChunk{FinishReason: string(choice.FinishReason)}

	if choice.Delta.Content != "" {
		if !s.inContent {
			s.blockIndex++
			s.inContent = true
			chunk.Start = true
		}
		chunk.Content = choice.Delta.Content
		chunk.Index = s.blockIndex
	}

	for _, call := range choice.Delta.ToolCalls {
		wireIndex := 0
		if call.Index != nil {
			wireIndex = *call.Index
		}
		if s.seenCalls == nil {
			s.seenCalls = make(map[int]int)
		}
		block, seen := s.seenCalls[wireIndex]
		if !seen {
			s.blockIndex++
			s.inContent = false
			block = s.blockIndex
			s.seenCalls[wireIndex] = block
			chunk.Start = true
		}
		chunk.Index = block
		chunk.ToolCalls = append(chunk.ToolCalls, chat.ToolCallDelta{
			Index:             wireIndex,
			CallID:            call.ID,
			ToolName:          call.Function.Name,
			ArgumentsFragment: call.Function.Arguments,
		})
	}

	return chunk, nil
}

// Close implements Stream.
func (s *openaiStream) Close() error {
	return s.upstream.Close()
}

// Package provider abstracts the language-model completion capability:
// plain completions, schema-constrained structured output, and chunked
// streaming. The flow engine depends only on the Provider interface;
// the OpenAI implementation and a scripted mock live alongside it.
package provider

import (
	"context"
	"encoding/json"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
	"github.com/fraudflow-dev/fraudflow/internal/tool"
)

// Provider is the completion capability consumed by the flow engine.
type Provider interface {
	// Complete generates a single non-streamed reply.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CompleteStructured generates a reply constrained to the given
	// JSON schema and returns the raw structured payload.
	CompleteStructured(ctx context.Context, req Request, schema json.RawMessage) (*StructuredResponse, error)

	// Stream generates a reply as a lazy chunk sequence terminated by
	// a chunk with FinishReason set.
	Stream(ctx context.Context, req Request) (Stream, error)

	// Name returns the provider name.
	Name() string
}

// Request is one completion request.
type Request struct {
	Model       string
	Messages    []chat.Message
	Tools       []tool.Spec
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Response is a completed (non-streamed) reply.
type Response struct {
	// Message is the assistant reply; its ToolCalls field is set when
	// the model requested tool invocations.
	Message      chat.Message
	FinishReason string
	Usage        chat.Usage
}

// StructuredResponse carries the parsed structured payload.
type StructuredResponse struct {
	Data json.RawMessage
	Response
}

// Stream is a lazy, finite, non-restartable chunk sequence.
// Recv returns io.EOF after the terminal chunk has been delivered.
type Stream interface {
	Recv() (*chat.StreamingChunk, error)
	Close() error
}

// Error codes for classifying provider failures.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeAuthentication = "authentication_error"
	ErrorCodeRateLimit      = "rate_limit_exceeded"
	ErrorCodeServerError    = "server_error"
	ErrorCodeTimeout        = "timeout"
	ErrorCodeUnknown        = "unknown_error"
)

// Error is a provider-side failure. The flow does not retry these; the
// turn aborts and nothing is committed to session history.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return e.Provider + " error: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class is transient.
func (e *Error) Retryable() bool {
	switch e.Code {
	case ErrorCodeRateLimit, ErrorCodeServerError, ErrorCodeTimeout:
		return true
	default:
		return false
	}
}

// NewError creates a provider error.
func NewError(provider, code, message string, err error) *Error {
	return &Error{Provider: provider, Code: code, Message: message, Err: err}
}

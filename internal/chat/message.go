// Package chat defines the conversation value types shared by the flow
// engine: messages, tool results, streamed deltas, and token usage.
// All types in this package are request-scoped values; once constructed
// they are treated as immutable.
package chat

import "fmt"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversation turn.
//
// A tool-role message always carries a ToolResult; FromTool is the only
// constructor that produces one.
type Message struct {
	Role Role `json:"role"`
	Text string `json:"text"`

	// ToolCalls is set on assistant messages that request tool
	// invocations instead of (or alongside) plain text.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResult is set only on tool-role messages and carries the
	// outcome of one tool invocation.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolCall is a completed tool-invocation request from the model.
// Arguments holds the full JSON arguments text, valid only once the
// originating stream observed a finish reason.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult records the outcome of a single tool invocation.
type ToolResult struct {
	// CallID links the result to the originating tool call on the
	// wire; it is bookkeeping, not part of the conversation record.
	CallID string `json:"-"`

	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// System creates a system message.
func System(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

// User creates a user message.
func User(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// Assistant creates an assistant message.
func Assistant(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// FromTool creates a tool-role message carrying the given result.
func FromTool(result ToolResult) Message {
	text := result.Error
	if text == "" {
		text = fmt.Sprintf("%v", result.Result)
	}
	return Message{Role: RoleTool, Text: text, ToolResult: &result}
}

// Failed reports whether the invocation recorded an error.
func (r ToolResult) Failed() bool {
	return r.Error != ""
}

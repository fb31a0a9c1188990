package chat

// ToolCallDelta is one incremental update to a tool call under
// construction. Arguments for a given call arrive as text fragments
// spread across multiple deltas with the same Index; the concatenated
// arguments string is only complete once a finish reason is observed.
type ToolCallDelta struct {
	Index int `json:"index"`

	// CallID is wire bookkeeping carried from providers that assign
	// call identifiers; set on the first delta for an index.
	CallID string `json:"-"`

	// ToolName is set on the first delta for an index and empty on
	// continuation fragments.
	ToolName string `json:"tool_name,omitempty"`

	// ArgumentsFragment is the next piece of the JSON arguments text.
	ArgumentsFragment string `json:"arguments_fragment,omitempty"`
}

// StreamingChunk is one incremental delta of an in-progress model reply.
// Chunks form a lazy, finite, non-restartable sequence consumed exactly
// once per turn by the stream assembler.
type StreamingChunk struct {
	// Index identifies the semantic block this chunk belongs to.
	// It increases when the reply moves to a new block (content,
	// tool call, reasoning).
	Index int `json:"index"`

	// Start marks the first delta of a new semantic block and drives
	// block-separator insertion in the assembler.
	Start bool `json:"start"`

	Content    string          `json:"content,omitempty"`
	ToolCalls  []ToolCallDelta `json:"tool_calls,omitempty"`
	ToolResult *ToolResult     `json:"tool_result,omitempty"`
	Reasoning  string          `json:"reasoning,omitempty"`

	// FinishReason is set on the terminal chunk of a turn.
	FinishReason string `json:"finish_reason,omitempty"`
}

// Usage tracks token consumption for one completion or one whole turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

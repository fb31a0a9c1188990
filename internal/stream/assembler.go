// Package stream renders the lazy chunk sequence of an in-progress turn
// into a growing block-tagged text buffer, and carries the rendered
// bytes from the producing flow to the response writer through an
// explicit FIFO queue.
package stream

import (
	"fmt"
	"strings"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

// Assembler is a pure per-turn reducer over a chunk sequence. Feed
// returns the rendered delta for each chunk and grows the internal
// buffer. An Assembler serves exactly one turn; it is not restartable.
type Assembler struct {
	buf strings.Builder

	fed       bool
	lastBlock int
	// headered tracks which tool-call indexes have had their
	// "[TOOL CALL]" header emitted.
	headered map[int]bool
}

// NewAssembler creates an assembler for one turn.
func NewAssembler() *Assembler {
	return &Assembler{lastBlock: -1, headered: make(map[int]bool)}
}

// Feed renders one chunk and returns the delta appended to the buffer.
// Chunks must be fed in arrival order.
func (a *Assembler) Feed(chunk *chat.StreamingChunk) string {
	var delta strings.Builder

	// Block separator: a new block after the first chunk of the turn.
	if chunk.Start && a.fed && chunk.Index > a.lastBlock {
		delta.WriteString("\n\n")
	}
	if chunk.Index > a.lastBlock {
		a.lastBlock = chunk.Index
	}
	a.fed = true

	for _, call := range chunk.ToolCalls {
		if chunk.Start && !a.headered[call.Index] {
			a.headered[call.Index] = true
			delta.WriteString("[TOOL CALL]\nTool: ")
			delta.WriteString(call.ToolName)
			delta.WriteString("\nArguments: ")
		}
		delta.WriteString(call.ArgumentsFragment)
	}

	if chunk.ToolResult != nil {
		delta.WriteString("[TOOL RESULT]\n")
		if chunk.ToolResult.Error != "" {
			delta.WriteString(chunk.ToolResult.Error)
		} else {
			delta.WriteString(fmt.Sprintf("%v", chunk.ToolResult.Result))
		}
	}

	if chunk.Content != "" {
		if chunk.Start {
			delta.WriteString("[ASSISTANT]\n")
		}
		delta.WriteString(chunk.Content)
	}

	if chunk.Reasoning != "" {
		if chunk.Start {
			delta.WriteString("[REASONING]\n")
		}
		delta.WriteString(chunk.Reasoning)
	}

	if chunk.FinishReason != "" {
		delta.WriteString("\n\n")
	}

	rendered := delta.String()
	a.buf.WriteString(rendered)
	return rendered
}

// String returns the full rendered buffer so far.
func (a *Assembler) String() string {
	return a.buf.String()
}

// Final returns the trimmed buffer, the form stored as the turn's
// answer in session history.
func (a *Assembler) Final() string {
	return strings.TrimSpace(a.buf.String())
}

package agentloop

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

// fallbackEncoding covers models tiktoken does not know about.
const fallbackEncoding = "cl100k_base"

// estimateUsage recounts tokens locally when the provider reported no
// usage, which is the normal case for streamed responses.
func estimateUsage(model string, prompt []chat.Message, reply chat.Message) chat.Usage {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return chat.Usage{}
		}
	}

	var promptTokens int
	for _, m := range prompt {
		promptTokens += len(enc.Encode(m.Text, nil, nil))
	}

	completionTokens := len(enc.Encode(reply.Text, nil, nil))
	for _, call := range reply.ToolCalls {
		completionTokens += len(enc.Encode(call.Name, nil, nil))
		completionTokens += len(enc.Encode(call.Arguments, nil, nil))
	}

	return chat.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

package flow

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Prompts holds the system prompts the flow is built with.
type Prompts struct {
	Guardrail  string `yaml:"guardrail_prompt"`
	NonRelated string `yaml:"non_related_llm_prompt"`
	AgentQuery string `yaml:"agent_query_prompt"`
}

// DefaultPrompts loads the embedded prompt pack.
func DefaultPrompts() (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(promptsYAML, &p); err != nil {
		return Prompts{}, fmt.Errorf("parse embedded prompts: %w", err)
	}
	return p, nil
}

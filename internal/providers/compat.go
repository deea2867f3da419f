package providers

import (
	"strings"

	"github.com/agentif/agentif/pkg/models"
)

// Max-tokens request field variants.
const (
	MaxTokensField           = "max_tokens"
	MaxCompletionTokensField = "max_completion_tokens"
)

// Thinking request format variants.
const (
	ThinkingFormatOpenAI = "openai"
	ThinkingFormatZAI    = "zai"
)

// CompletionsCompat is the switchboard for the many OpenAI-Completions
// compatible backends. It is resolved once at adapter entry so the request
// build and stream consume stay free of provider conditionals.
type CompletionsCompat struct {
	SupportsStore            bool
	SupportsDeveloperRole    bool
	SupportsReasoningEffort  bool
	SupportsUsageInStreaming bool

	// MaxTokensField names the token-cap request field.
	MaxTokensField string

	// RequiresToolResultName repeats the tool name on tool-result messages.
	RequiresToolResultName bool

	// RequiresAssistantAfterToolResult inserts a filler assistant message
	// between a tool result and the following user message.
	RequiresAssistantAfterToolResult bool

	// RequiresThinkingAsText renders thinking blocks as a prepended text
	// block instead of a dedicated field.
	RequiresThinkingAsText bool

	// RequiresMistralToolIds forces 9-character alphanumeric tool call ids.
	RequiresMistralToolIds bool

	// ThinkingFormat selects the reasoning request shape.
	ThinkingFormat string
}

// DetectCompat derives the compatibility matrix from the model descriptor.
// Explicit CompatOverrides entries win over detection.
func DetectCompat(m models.Model) CompletionsCompat {
	c := CompletionsCompat{
		SupportsUsageInStreaming: true,
		MaxTokensField:           MaxTokensField,
		ThinkingFormat:           ThinkingFormatOpenAI,
	}

	provider := strings.ToLower(m.Provider)
	baseURL := strings.ToLower(m.BaseURL)

	switch {
	case provider == "openai" || strings.Contains(baseURL, "api.openai.com"):
		c.SupportsStore = true
		c.SupportsDeveloperRole = true
		c.SupportsReasoningEffort = true
		c.MaxTokensField = MaxCompletionTokensField

	case provider == "mistral" || strings.Contains(baseURL, "api.mistral.ai"):
		c.RequiresMistralToolIds = true
		c.RequiresToolResultName = true
		c.RequiresAssistantAfterToolResult = true
		c.RequiresThinkingAsText = true

	case provider == "minimax":
		c.RequiresMistralToolIds = true

	case provider == "zai":
		c.ThinkingFormat = ThinkingFormatZAI

	case provider == "github-copilot":
		c.SupportsUsageInStreaming = false
	}

	for key, on := range m.CompatOverrides {
		switch key {
		case "supportsStore":
			c.SupportsStore = on
		case "supportsDeveloperRole":
			c.SupportsDeveloperRole = on
		case "supportsReasoningEffort":
			c.SupportsReasoningEffort = on
		case "supportsUsageInStreaming":
			c.SupportsUsageInStreaming = on
		case "requiresToolResultName":
			c.RequiresToolResultName = on
		case "requiresAssistantAfterToolResult":
			c.RequiresAssistantAfterToolResult = on
		case "requiresThinkingAsText":
			c.RequiresThinkingAsText = on
		case "requiresMistralToolIds":
			c.RequiresMistralToolIds = on
		case "usesMaxCompletionTokens":
			if on {
				c.MaxTokensField = MaxCompletionTokensField
			} else {
				c.MaxTokensField = MaxTokensField
			}
		case "zaiThinkingFormat":
			if on {
				c.ThinkingFormat = ThinkingFormatZAI
			} else {
				c.ThinkingFormat = ThinkingFormatOpenAI
			}
		}
	}
	return c
}

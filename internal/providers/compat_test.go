package providers

import (
	"testing"
)

func TestDetectCompatOpenAI(t *testing.T) {
	c := DetectCompat(completionsModel("openai", "gpt-4o"))
	if !c.SupportsStore || !c.SupportsDeveloperRole || !c.SupportsReasoningEffort {
		t.Errorf("openai compat = %+v, want store/developer/reasoning on", c)
	}
	if c.MaxTokensField != MaxCompletionTokensField {
		t.Errorf("MaxTokensField = %q, want %q", c.MaxTokensField, MaxCompletionTokensField)
	}
	if !c.SupportsUsageInStreaming {
		t.Error("openai should report usage in streaming")
	}
}

func TestDetectCompatByBaseURL(t *testing.T) {
	m := completionsModel("custom", "gpt-4o")
	m.BaseURL = "https://api.openai.com/v1"
	if c := DetectCompat(m); !c.SupportsStore {
		t.Error("api.openai.com base url should detect as openai")
	}
	m.BaseURL = "https://api.mistral.ai/v1"
	if c := DetectCompat(m); !c.RequiresMistralToolIds {
		t.Error("api.mistral.ai base url should detect as mistral")
	}
}

func TestDetectCompatMistral(t *testing.T) {
	c := DetectCompat(completionsModel("mistral", "mistral-large"))
	if !c.RequiresMistralToolIds || !c.RequiresToolResultName {
		t.Errorf("mistral compat = %+v", c)
	}
	if !c.RequiresAssistantAfterToolResult || !c.RequiresThinkingAsText {
		t.Errorf("mistral compat = %+v", c)
	}
	if c.MaxTokensField != MaxTokensField {
		t.Errorf("MaxTokensField = %q, want %q", c.MaxTokensField, MaxTokensField)
	}
}

func TestDetectCompatMinimaxZaiCopilot(t *testing.T) {
	if c := DetectCompat(completionsModel("minimax", "m2")); !c.RequiresMistralToolIds {
		t.Error("minimax should require 9-char tool ids")
	}
	if c := DetectCompat(completionsModel("zai", "glm-5")); c.ThinkingFormat != ThinkingFormatZAI {
		t.Errorf("zai ThinkingFormat = %q", c.ThinkingFormat)
	}
	if c := DetectCompat(completionsModel("github-copilot", "gpt-4o")); c.SupportsUsageInStreaming {
		t.Error("copilot should not request usage in streaming")
	}
}

func TestDetectCompatUnknownDefaults(t *testing.T) {
	c := DetectCompat(completionsModel("ollama", "llama3"))
	want := CompletionsCompat{
		SupportsUsageInStreaming: true,
		MaxTokensField:           MaxTokensField,
		ThinkingFormat:           ThinkingFormatOpenAI,
	}
	if c != want {
		t.Errorf("default compat = %+v, want %+v", c, want)
	}
}

func TestCompatOverridesWin(t *testing.T) {
	m := completionsModel("openai", "gpt-4o")
	m.CompatOverrides = map[string]bool{
		"supportsStore":           false,
		"usesMaxCompletionTokens": false,
		"zaiThinkingFormat":       true,
		"requiresMistralToolIds":  true,
	}
	c := DetectCompat(m)
	if c.SupportsStore {
		t.Error("override should disable store")
	}
	if c.MaxTokensField != MaxTokensField {
		t.Errorf("MaxTokensField = %q, want %q", c.MaxTokensField, MaxTokensField)
	}
	if c.ThinkingFormat != ThinkingFormatZAI {
		t.Errorf("ThinkingFormat = %q, want zai", c.ThinkingFormat)
	}
	if !c.RequiresMistralToolIds {
		t.Error("override should force mistral tool ids")
	}
}

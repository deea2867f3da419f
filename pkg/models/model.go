// Package models defines the canonical data model shared by the agent core:
// messages and their content blocks, tool calls, usage accounting, agent
// state, session journal entries, and the structured event taxonomy.
//
// Everything that crosses a subsystem boundary (middleware chain, provider
// adapters, session stores, channels) is expressed in terms of this package,
// so provider wire formats stay confined to the adapters.
package models

// API identifies the wire protocol used to talk to a provider. The streaming
// dispatcher selects an adapter by this value.
type API string

const (
	// APIOpenAIResponses is the OpenAI Responses API (POST /responses, SSE).
	APIOpenAIResponses API = "openai-responses"

	// APIOpenAICompletions is the OpenAI Chat Completions API and its many
	// compatible implementations (POST /chat/completions, SSE).
	APIOpenAICompletions API = "openai-completions"

	// APIAnthropicMessages is the Anthropic Messages API (POST /v1/messages, SSE).
	APIAnthropicMessages API = "anthropic-messages"

	// APIGoogleGenerativeAI is the public Google Generative Language REST API.
	APIGoogleGenerativeAI API = "google-generative-ai"

	// APIGoogleGeminiCLI is the OAuth-authenticated Gemini CLI internal
	// streaming endpoint.
	APIGoogleGeminiCLI API = "google-gemini-cli"
)

// StopReason is the canonical reason a model stopped generating. Provider
// specific finish reasons are mapped onto this set by the adapters.
type StopReason string

const (
	StopReasonStop          StopReason = "stop"
	StopReasonToolCalls     StopReason = "tool_calls"
	StopReasonLength        StopReason = "length"
	StopReasonContentFilter StopReason = "content_filter"
	StopReasonSafety        StopReason = "safety"
	StopReasonError         StopReason = "error"
	StopReasonOther         StopReason = "other"
)

// Model describes a concrete model served by some provider, along with the
// connection details the adapters need to reach it.
type Model struct {
	// ID is the provider-side model identifier (e.g. "claude-sonnet-4-20250514").
	ID string `json:"id"`

	// Provider names the serving provider ("openai", "anthropic", "google",
	// "mistral", "minimax", "zai", "github-copilot", ...). Adapters use it
	// for compatibility detection and tool-call id normalization.
	Provider string `json:"provider"`

	// API selects the wire protocol used to reach the model.
	API API `json:"api"`

	// BaseURL overrides the provider's default endpoint when set.
	BaseURL string `json:"base_url,omitempty"`

	// ContextWindow is the model's context window in tokens. The compaction
	// engine compares the previous call's input tokens against it.
	ContextWindow int `json:"context_window,omitempty"`

	// MaxTokens caps the response length; 0 means the adapter default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// ReasoningEffort requests a reasoning budget ("low", "medium", "high")
	// on backends that support the field; ignored elsewhere.
	ReasoningEffort string `json:"reasoning_effort,omitempty"`

	// Headers are extra HTTP headers sent with every request to this model.
	Headers map[string]string `json:"headers,omitempty"`

	// CompatOverrides force individual OpenAI-Completions compatibility
	// switches on or off, keyed by field name (e.g. "supportsStore"),
	// overriding auto-detection from Provider and BaseURL.
	CompatOverrides map[string]bool `json:"compat_overrides,omitempty"`
}

// SignatureKey identifies the (provider, api, model) triple that opaque
// content-block signatures are bound to. Signatures round-trip only between
// calls with equal keys.
func (m Model) SignatureKey() string {
	return m.Provider + "/" + string(m.API) + "/" + m.ID
}

package models

import "encoding/json"

// Usage is token accounting for one or more provider calls. Fields
// accumulate monotonically on the agent state.
type Usage struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cache_read"`
	CacheWrite int `json:"cache_write"`
	Total      int `json:"total"`
}

// Add accumulates other into u. When other carries no explicit total, the
// component sum is used instead.
func (u *Usage) Add(other Usage) {
	u.Input += other.Input
	u.Output += other.Output
	u.CacheRead += other.CacheRead
	u.CacheWrite += other.CacheWrite
	if other.Total != 0 {
		u.Total += other.Total
	} else {
		u.Total += other.Input + other.Output + other.CacheRead + other.CacheWrite
	}
}

// AgentState is the mutable conversation state carried through one
// evaluation. Messages up to and including the last assistant message are the
// committed history; PendingToolCalls are the uncommitted edge drained by the
// tool-call loop.
type AgentState struct {
	Messages         MessageList `json:"messages"`
	LastResponseID   string      `json:"last_response_id,omitempty"`
	Usage            Usage       `json:"usage"`
	PendingToolCalls []ToolCall  `json:"pending_tool_calls,omitempty"`
	StopReason       StopReason  `json:"stop_reason,omitempty"`
	SessionID        string      `json:"session_id,omitempty"`

	// LastCompaction is set by the compaction engine when this evaluation
	// rewrote the message prefix; the session middleware reads it to decide
	// between a delta entry and a compaction entry. Not serialized.
	LastCompaction *CompactionSummaryMessage `json:"-"`

	// LastCallInputTokens is the input token count reported by the most
	// recent provider call. The compaction trigger compares it against the
	// model's context window before the next call.
	LastCallInputTokens int `json:"last_call_input_tokens,omitempty"`
}

// NewAgentState returns an empty state.
func NewAgentState() *AgentState { return &AgentState{} }

// Append adds messages to the end of the history.
func (s *AgentState) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
}

// LastAssistantMessage returns the most recent assistant message, or nil.
func (s *AgentState) LastAssistantMessage() *AssistantMessage {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if am, ok := s.Messages[i].(*AssistantMessage); ok {
			return am
		}
	}
	return nil
}

// AddUsage accumulates call usage into the state.
func (s *AgentState) AddUsage(u Usage) { s.Usage.Add(u) }

// Clone deep-copies the state through its JSON form. Stores hand out clones
// so callers never share block pointers with persisted state.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		cp := *s
		return &cp
	}
	var out AgentState
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *s
		return &cp
	}
	out.LastCompaction = s.LastCompaction
	return &out
}

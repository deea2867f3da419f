package models

// AgentEventType names one event in the fixed progress taxonomy.
type AgentEventType string

const (
	EventEvaluateStart      AgentEventType = "agent.evaluate.start"
	EventEvaluateEnd        AgentEventType = "agent.evaluate.end"
	EventTurnStart          AgentEventType = "agent.turn.start"
	EventTurnEnd            AgentEventType = "agent.turn.end"
	EventMessageStart       AgentEventType = "agent.message.start"
	EventMessageUpdate      AgentEventType = "agent.message.update"
	EventMessageEnd         AgentEventType = "agent.message.end"
	EventToolCallRequest    AgentEventType = "agent.tool_call.request"
	EventToolExecutionStart AgentEventType = "agent.tool_execution.start"
	EventToolExecutionEnd   AgentEventType = "agent.tool_execution.end"
	EventAgentError         AgentEventType = "agent.error"
)

// UpdateKind classifies a MessageUpdate delta.
type UpdateKind string

const (
	UpdateText          UpdateKind = "text"
	UpdateReasoning     UpdateKind = "reasoning"
	UpdateToolArguments UpdateKind = "tool_arguments"
	UpdateRefusal       UpdateKind = "refusal"
)

// Role names the message author on message events.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AgentEvent is one structured progress event delivered to the caller's
// sink. Payload fields are populated per type; unused fields are zero.
// Events never carry live references into mutable agent state.
type AgentEvent struct {
	Type AgentEventType `json:"type"`

	// Time is the emission time as unix-epoch seconds.
	Time float64 `json:"time"`

	// Sequence increases monotonically per evaluation.
	Sequence uint64 `json:"sequence"`

	EvaluationID string `json:"evaluation_id,omitempty"`
	TurnID       string `json:"turn_id,omitempty"`

	// Message events.
	Role    Role       `json:"role,omitempty"`
	Message Message    `json:"message,omitempty"`
	Kind    UpdateKind `json:"kind,omitempty"`
	Delta   string     `json:"delta,omitempty"`
	ItemID  string     `json:"item_id,omitempty"`

	// Tool events.
	ToolCall   *ToolCall          `json:"tool_call,omitempty"`
	Result     *ToolResultMessage `json:"result,omitempty"`
	DurationMS int64              `json:"duration_ms,omitempty"`

	// Evaluate / turn end payloads.
	State *AgentState `json:"state,omitempty"`
	Err   error       `json:"-"`

	// ErrText mirrors Err for serialization.
	ErrText string `json:"error,omitempty"`
}

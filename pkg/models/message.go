package models

import (
	"encoding/json"
	"fmt"
)

// Message is one entry in a conversation. Concrete variants are UserMessage,
// AssistantMessage, ToolResultMessage and CompactionSummaryMessage; JSON is
// tagged by a "type" discriminator.
type Message interface {
	MessageType() string
}

// UserMessage carries user-authored content (text and images).
type UserMessage struct {
	Content BlockList `json:"content"`
}

func (*UserMessage) MessageType() string { return "user" }

// NewUserMessage builds a user message holding a single text block.
func NewUserMessage(text string) *UserMessage {
	return &UserMessage{Content: BlockList{&TextBlock{Text: text}}}
}

// AssistantMessage is one model response: interleaved text, thinking and
// tool-call blocks, tagged with the (provider, api, model) triple that
// produced it. ToolCalls is a redundant flat list of the completed tool-call
// blocks, in stream order.
type AssistantMessage struct {
	Provider   string     `json:"provider"`
	API        API        `json:"api"`
	Model      string     `json:"model"`
	ResponseID string     `json:"response_id,omitempty"`
	Content    BlockList  `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

func (*AssistantMessage) MessageType() string { return "assistant" }

// NewAssistantMessage builds an empty assistant message attributed to model.
func NewAssistantMessage(model Model) *AssistantMessage {
	return &AssistantMessage{Provider: model.Provider, API: model.API, Model: model.ID}
}

// SignatureKey is the triple key content-block signatures are bound to.
func (m *AssistantMessage) SignatureKey() string {
	return m.Provider + "/" + string(m.API) + "/" + m.Model
}

// AppendText fuses a text delta into the trailing block. A new TextBlock is
// started when the last block is not text.
func (m *AssistantMessage) AppendText(delta, signature string) {
	if n := len(m.Content); n > 0 {
		if tb, ok := m.Content[n-1].(*TextBlock); ok {
			tb.Text += delta
			if signature != "" {
				tb.Signature = signature
			}
			return
		}
	}
	m.Content = append(m.Content, &TextBlock{Text: delta, Signature: signature})
}

// AppendThinking fuses a reasoning delta into the trailing block. A new
// ThinkingBlock is started when the last block is not thinking.
func (m *AssistantMessage) AppendThinking(delta, signature string) {
	if n := len(m.Content); n > 0 {
		if tb, ok := m.Content[n-1].(*ThinkingBlock); ok {
			tb.Thinking += delta
			if signature != "" {
				tb.Signature = signature
			}
			return
		}
	}
	m.Content = append(m.Content, &ThinkingBlock{Thinking: delta, Signature: signature})
}

// SetLastText overwrites the most recent text block, creating one if none
// exists. Providers that send a final canonical form after streaming deltas
// use this to replace the accumulated text.
func (m *AssistantMessage) SetLastText(text, signature string) {
	for i := len(m.Content) - 1; i >= 0; i-- {
		if tb, ok := m.Content[i].(*TextBlock); ok {
			tb.Text = text
			if signature != "" {
				tb.Signature = signature
			}
			return
		}
	}
	m.Content = append(m.Content, &TextBlock{Text: text, Signature: signature})
}

// SetLastThinking overwrites the most recent thinking block, creating one if
// none exists.
func (m *AssistantMessage) SetLastThinking(thinking, signature string) {
	for i := len(m.Content) - 1; i >= 0; i-- {
		if tb, ok := m.Content[i].(*ThinkingBlock); ok {
			tb.Thinking = thinking
			if signature != "" {
				tb.Signature = signature
			}
			return
		}
	}
	m.Content = append(m.Content, &ThinkingBlock{Thinking: thinking, Signature: signature})
}

// AddToolCall appends a completed tool-call block and mirrors it in the flat
// ToolCalls list.
func (m *AssistantMessage) AddToolCall(id, name, arguments, signature string) {
	m.Content = append(m.Content, &ToolCallBlock{ID: id, Name: name, Arguments: arguments, Signature: signature})
	m.ToolCalls = append(m.ToolCalls, ToolCall{ID: id, Name: name, Arguments: arguments})
}

// ToolResultMessage carries the outcome of one tool invocation back to the
// model.
type ToolResultMessage struct {
	CallID   string    `json:"call_id"`
	ToolName string    `json:"tool_name"`
	Content  BlockList `json:"content"`
	IsError  bool      `json:"is_error"`
}

func (*ToolResultMessage) MessageType() string { return "tool_result" }

// NewToolResultMessage builds a text-only tool result.
func NewToolResultMessage(callID, toolName, text string, isError bool) *ToolResultMessage {
	return &ToolResultMessage{
		CallID:   callID,
		ToolName: toolName,
		Content:  BlockList{&TextBlock{Text: text}},
		IsError:  isError,
	}
}

// CompactionSummaryMessage replaces a discarded message prefix after context
// compaction. Always at index 0 when present.
type CompactionSummaryMessage struct {
	Summary      string  `json:"summary"`
	TokensBefore int     `json:"tokens_before"`
	CompactedAt  float64 `json:"compacted_at"`
}

func (*CompactionSummaryMessage) MessageType() string { return "compaction_summary" }

// MessageText concatenates all text blocks of a message in order. Compaction
// summaries contribute their summary text.
func MessageText(m Message) string {
	switch msg := m.(type) {
	case *UserMessage:
		return blocksText(msg.Content)
	case *AssistantMessage:
		return blocksText(msg.Content)
	case *ToolResultMessage:
		return blocksText(msg.Content)
	case *CompactionSummaryMessage:
		return msg.Summary
	}
	return ""
}

// MessageThinking concatenates all thinking blocks of a message in order.
func MessageThinking(m Message) string {
	am, ok := m.(*AssistantMessage)
	if !ok {
		return ""
	}
	var out string
	for _, b := range am.Content {
		if tb, ok := b.(*ThinkingBlock); ok {
			out += tb.Thinking
		}
	}
	return out
}

func blocksText(blocks BlockList) string {
	var out string
	for _, b := range blocks {
		if tb, ok := b.(*TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}

// MessageList is an ordered message sequence with tagged JSON.
type MessageList []Message

// MarshalJSON writes each message with its "type" tag injected.
func (l MessageList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, m := range l {
		raw, err := marshalTagged(m.MessageType(), m)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON dispatches on each element's "type" tag.
func (l *MessageList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	msgs := make(MessageList, 0, len(raws))
	for _, raw := range raws {
		m, err := UnmarshalMessage(raw)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	*l = msgs
	return nil
}

// CloneMessage deep-copies one message through its JSON form. Event payloads
// carry clones so sinks never observe later mutation of live state.
func CloneMessage(m Message) Message {
	if m == nil {
		return nil
	}
	raw, err := marshalTagged(m.MessageType(), m)
	if err != nil {
		return m
	}
	out, err := UnmarshalMessage(raw)
	if err != nil {
		return m
	}
	return out
}

// UnmarshalMessage decodes a single tagged message.
func UnmarshalMessage(data []byte) (Message, error) {
	var tag taggedBlock
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	var m Message
	switch tag.Type {
	case "user":
		m = &UserMessage{}
	case "assistant":
		m = &AssistantMessage{}
	case "tool_result":
		m = &ToolResultMessage{}
	case "compaction_summary":
		m = &CompactionSummaryMessage{}
	default:
		return nil, fmt.Errorf("unknown message type %q", tag.Type)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

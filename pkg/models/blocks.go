package models

import (
	"encoding/json"
	"fmt"
)

// ContentBlock is one ordered piece of message content. Concrete variants are
// TextBlock, ThinkingBlock, ImageBlock and ToolCallBlock; JSON is tagged by a
// "type" discriminator.
type ContentBlock interface {
	// BlockType returns the JSON type tag for the block.
	BlockType() string

	// BlockSignature returns the opaque provider-bound signature attached to
	// the block, if any.
	BlockSignature() string

	// SetBlockSignature replaces the block's signature. Used by the
	// normalization pass to drop signatures that no longer apply.
	SetBlockSignature(sig string)
}

// TextBlock is visible assistant or user text.
type TextBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

func (*TextBlock) BlockType() string           { return "text" }
func (b *TextBlock) BlockSignature() string    { return b.Signature }
func (b *TextBlock) SetBlockSignature(s string) { b.Signature = s }

// ThinkingBlock is model reasoning, never shown as normal output.
type ThinkingBlock struct {
	Thinking  string `json:"thinking"`
	Signature string `json:"signature,omitempty"`
}

func (*ThinkingBlock) BlockType() string           { return "thinking" }
func (b *ThinkingBlock) BlockSignature() string    { return b.Signature }
func (b *ThinkingBlock) SetBlockSignature(s string) { b.Signature = s }

// ImageBlock carries base64-encoded image bytes plus a MIME type.
type ImageBlock struct {
	Data      string `json:"data"`
	MimeType  string `json:"mime_type"`
	Signature string `json:"signature,omitempty"`
}

func (*ImageBlock) BlockType() string           { return "image" }
func (b *ImageBlock) BlockSignature() string    { return b.Signature }
func (b *ImageBlock) SetBlockSignature(s string) { b.Signature = s }

// ToolCallBlock is a model-requested tool invocation embedded in assistant
// content. Arguments is the raw JSON argument text as accumulated from the
// stream.
type ToolCallBlock struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Signature string `json:"signature,omitempty"`
}

func (*ToolCallBlock) BlockType() string           { return "toolCall" }
func (b *ToolCallBlock) BlockSignature() string    { return b.Signature }
func (b *ToolCallBlock) SetBlockSignature(s string) { b.Signature = s }

// ToolCall mirrors ToolCallBlock in the flat tool-call list carried on
// assistant messages and in AgentState.PendingToolCalls.
type ToolCall struct {
	ID        string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// BlockList is an ordered sequence of content blocks with tagged JSON.
type BlockList []ContentBlock

type taggedBlock struct {
	Type string `json:"type"`
}

// MarshalJSON writes each block with its "type" tag injected.
func (l BlockList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, b := range l {
		raw, err := marshalTagged(b.BlockType(), b)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON dispatches on each element's "type" tag.
func (l *BlockList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	blocks := make(BlockList, 0, len(raws))
	for _, raw := range raws {
		var tag taggedBlock
		if err := json.Unmarshal(raw, &tag); err != nil {
			return err
		}
		var block ContentBlock
		switch tag.Type {
		case "text":
			block = &TextBlock{}
		case "thinking":
			block = &ThinkingBlock{}
		case "image":
			block = &ImageBlock{}
		case "toolCall":
			block = &ToolCallBlock{}
		default:
			return fmt.Errorf("unknown content block type %q", tag.Type)
		}
		if err := json.Unmarshal(raw, block); err != nil {
			return err
		}
		blocks = append(blocks, block)
	}
	*l = blocks
	return nil
}

// marshalTagged marshals v and injects {"type": tag} into the object.
func marshalTagged(tag string, v any) (json.RawMessage, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(`"` + tag + `"`)
	return json.Marshal(fields)
}

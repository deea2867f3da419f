package providers

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentif/agentif/pkg/models"
)

// noResultText is the body of a synthetic tool result inserted for a tool
// call the thread never answered.
const noResultText = "No result provided"

// NormalizeThread prepares a message thread for one adapter: signatures
// scoped to the target model, every tool call paired with a result, and tool
// call ids rewritten through transform (nil means passthrough). The input is
// never mutated.
func NormalizeThread(msgs models.MessageList, model models.Model, transform func(string) string) models.MessageList {
	out := scopeSignatures(msgs, model)
	out = repairToolPairing(out)
	if transform != nil {
		out = rewriteToolIDs(out, transform)
	}
	return out
}

// scopeSignatures strips opaque block signatures from assistant messages
// produced by a different (provider, api, model) triple. A signature only
// round-trips to the model that minted it.
func scopeSignatures(msgs models.MessageList, model models.Model) models.MessageList {
	key := model.SignatureKey()
	out := make(models.MessageList, 0, len(msgs))
	for _, m := range msgs {
		am, ok := m.(*models.AssistantMessage)
		if !ok || am.SignatureKey() == key || !hasSignatures(am) {
			out = append(out, m)
			continue
		}
		clone := cloneAssistant(am)
		for _, b := range clone.Content {
			b.SetBlockSignature("")
		}
		out = append(out, clone)
	}
	return out
}

func hasSignatures(m *models.AssistantMessage) bool {
	for _, b := range m.Content {
		if b.BlockSignature() != "" {
			return true
		}
	}
	return false
}

// repairToolPairing enforces the call/result pairing invariant: after an
// assistant message with tool calls, exactly one result per call in call
// order. Missing results become synthetic errors, results that answer no
// call are dropped.
func repairToolPairing(msgs models.MessageList) models.MessageList {
	out := make(models.MessageList, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		am, ok := msgs[i].(*models.AssistantMessage)
		if !ok {
			// A result with no preceding call is dropped.
			if _, orphan := msgs[i].(*models.ToolResultMessage); !orphan {
				out = append(out, msgs[i])
			}
			continue
		}
		out = append(out, am)
		if len(am.ToolCalls) == 0 {
			continue
		}

		// Collect the run of results directly following the assistant turn.
		provided := map[string]*models.ToolResultMessage{}
		j := i + 1
		for ; j < len(msgs); j++ {
			tr, ok := msgs[j].(*models.ToolResultMessage)
			if !ok {
				break
			}
			if _, dup := provided[tr.CallID]; !dup {
				provided[tr.CallID] = tr
			}
		}
		i = j - 1

		for _, call := range am.ToolCalls {
			if tr, ok := provided[call.ID]; ok {
				out = append(out, tr)
				continue
			}
			out = append(out, models.NewToolResultMessage(call.ID, call.Name, noResultText, true))
		}
	}
	return out
}

// rewriteToolIDs maps every tool call id through transform, consistently
// across calls, blocks, and results. Colliding outputs are re-derived until
// unique.
func rewriteToolIDs(msgs models.MessageList, transform func(string) string) models.MessageList {
	mapping := map[string]string{}
	used := map[string]bool{}
	assign := func(orig string) string {
		if v, ok := mapping[orig]; ok {
			return v
		}
		v := transform(orig)
		for n := 2; used[v]; n++ {
			v = transform(orig + "#" + strconv.Itoa(n))
		}
		mapping[orig] = v
		used[v] = true
		return v
	}

	out := make(models.MessageList, 0, len(msgs))
	for _, m := range msgs {
		switch msg := m.(type) {
		case *models.AssistantMessage:
			if len(msg.ToolCalls) == 0 {
				out = append(out, msg)
				continue
			}
			clone := cloneAssistant(msg)
			for i := range clone.ToolCalls {
				clone.ToolCalls[i].ID = assign(clone.ToolCalls[i].ID)
			}
			for _, b := range clone.Content {
				if tc, ok := b.(*models.ToolCallBlock); ok {
					tc.ID = assign(tc.ID)
				}
			}
			out = append(out, clone)
		case *models.ToolResultMessage:
			mapped := assign(msg.CallID)
			if mapped == msg.CallID {
				out = append(out, msg)
				continue
			}
			clone := *msg
			clone.CallID = mapped
			out = append(out, &clone)
		default:
			out = append(out, m)
		}
	}
	return out
}

func cloneAssistant(m *models.AssistantMessage) *models.AssistantMessage {
	clone := *m
	clone.ToolCalls = append([]models.ToolCall(nil), m.ToolCalls...)
	clone.Content = make(models.BlockList, len(m.Content))
	for i, b := range m.Content {
		clone.Content[i] = cloneBlock(b)
	}
	return &clone
}

func cloneBlock(b models.ContentBlock) models.ContentBlock {
	switch block := b.(type) {
	case *models.TextBlock:
		c := *block
		return &c
	case *models.ThinkingBlock:
		c := *block
		return &c
	case *models.ImageBlock:
		c := *block
		return &c
	case *models.ToolCallBlock:
		c := *block
		return &c
	default:
		return b
	}
}

var toolIDSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeToolID replaces every character outside [A-Za-z0-9_-] with "_".
func sanitizeToolID(id string) string {
	return toolIDSanitizer.ReplaceAllString(id, "_")
}

func truncateToolID(id string, max int) string {
	if len(id) <= max {
		return id
	}
	return id[:max]
}

// alphanumericToolID derives the exactly-9-character alphanumeric id some
// Completions-compatible providers demand. The tail of the stripped id is
// kept since prefixes like "call_" carry no entropy.
func alphanumericToolID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 9 {
		s = s[len(s)-9:]
	}
	for len(s) < 9 {
		s += "0"
	}
	return s
}

// completionsToolIDTransform picks the id rule for an OpenAI-Completions
// compatible provider. Nil means ids pass through unchanged.
func completionsToolIDTransform(m models.Model) func(string) string {
	switch strings.ToLower(m.Provider) {
	case "mistral", "minimax":
		return alphanumericToolID
	case "github-copilot":
		if strings.HasPrefix(m.ID, "claude-") {
			return func(id string) string { return truncateToolID(sanitizeToolID(id), 64) }
		}
		return nil
	default:
		return nil
	}
}

func anthropicToolID(id string) string { return sanitizeToolID(id) }

func responsesToolID(id string) string { return truncateToolID(id, 40) }

func googleToolID(id string) string { return truncateToolID(sanitizeToolID(id), 64) }

// validThoughtSignature reports whether sig is well-formed base64, the only
// shape the Google APIs accept back.
func validThoughtSignature(sig string) bool {
	if sig == "" || len(sig)%4 != 0 {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(sig)
	return err == nil
}

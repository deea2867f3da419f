package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentif/agentif/pkg/models"
)

// Compaction defaults.
const (
	DefaultReserveTokens    = 16384
	DefaultKeepRecentTokens = 20000

	// imageTokenEstimate is the flat contribution of one image block.
	imageTokenEstimate = 1000
)

const compactionSummaryPrompt = `Summarize the conversation transcript the user provides. ` +
	`Produce a structured summary with exactly these sections:

## Goal
## Constraints & Preferences
## Progress
### Done
### In Progress
### Blocked
## Key Decisions
## Next Steps
## Critical Context

Be specific and keep every detail that would be needed to continue the work. Output only the summary.`

const compactionUpdatePrompt = compactionSummaryPrompt + `

The transcript begins with a previous summary. Merge its contents into the new summary instead of repeating it verbatim; the result must stand alone.`

// estimateMessageTokens is the rough token estimate used by the cut-point
// walk: ceil(text bytes / 4), tool-call argument bytes included, images a
// flat 1000 per block.
func estimateMessageTokens(m models.Message) int {
	bytes := 0
	images := 0
	switch msg := m.(type) {
	case *models.UserMessage:
		bytes, images = blockBytes(msg.Content)
	case *models.AssistantMessage:
		bytes, images = blockBytes(msg.Content)
	case *models.ToolResultMessage:
		bytes, images = blockBytes(msg.Content)
	case *models.CompactionSummaryMessage:
		bytes = len(msg.Summary)
	}
	return (bytes+3)/4 + images*imageTokenEstimate
}

func blockBytes(blocks models.BlockList) (bytes, images int) {
	for _, b := range blocks {
		switch block := b.(type) {
		case *models.TextBlock:
			bytes += len(block.Text)
		case *models.ThinkingBlock:
			bytes += len(block.Thinking)
		case *models.ToolCallBlock:
			bytes += len(block.Name) + len(block.Arguments)
		case *models.ImageBlock:
			images++
		}
	}
	return bytes, images
}

// findCutPoint picks the first message index to keep: walking from the end,
// the first index whose suffix estimate reaches keepRecent, advanced forward
// to the next UserMessage so a tool-call / tool-result pair is never split.
// Returns -1 when no user-message boundary exists.
func findCutPoint(msgs models.MessageList, keepRecent int) int {
	candidate := 0
	sum := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		sum += estimateMessageTokens(msgs[i])
		if sum >= keepRecent {
			candidate = i
			break
		}
	}
	for i := candidate; i < len(msgs); i++ {
		if _, ok := msgs[i].(*models.UserMessage); ok {
			return i
		}
	}
	return -1
}

// compactionMiddleware sits directly above the streaming leaf. Before each
// LLM call it compacts in place when the previous call's input tokens ran
// into the reserve band; the leaf records the post-call input-token count.
func (a *Agent) compactionMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, tc *TurnContext) (*models.AgentState, error) {
			if a.shouldCompact(tc.Agent.Model, tc.State) {
				a.compact(ctx, tc)
			}
			return next(ctx, tc)
		}
	}
}

func (a *Agent) shouldCompact(model models.Model, state *models.AgentState) bool {
	if a.Compaction.Disabled || model.ContextWindow <= 0 {
		return false
	}
	reserve := a.Compaction.ReserveTokens
	if reserve <= 0 {
		reserve = DefaultReserveTokens
	}
	return state.LastCallInputTokens > model.ContextWindow-reserve
}

// compact rewrites the state in place: a fresh structured summary at index
// 0, followed by the kept suffix. Any failure leaves the state untouched.
func (a *Agent) compact(ctx context.Context, tc *TurnContext) {
	state := tc.State
	keep := a.Compaction.KeepRecentTokens
	if keep <= 0 {
		keep = DefaultKeepRecentTokens
	}

	cut := findCutPoint(state.Messages, keep)
	if cut < 0 {
		a.logger.Debug("compaction skipped, no user-message boundary")
		return
	}

	start := 0
	var prior *models.CompactionSummaryMessage
	if cs, ok := state.Messages[0].(*models.CompactionSummaryMessage); ok {
		prior = cs
		start = 1
	}
	if cut <= start {
		a.logger.Debug("compaction skipped, nothing to discard")
		return
	}
	discard := state.Messages[start:cut]

	prompt := compactionSummaryPrompt
	if prior != nil {
		prompt = compactionUpdatePrompt
	}
	transcript := renderTranscript(prior, discard)

	summaryText, err := runSubAgent(ctx, tc.Agent.Streamer, tc.Agent.Model, tc.Agent.APIKey, prompt, transcript)
	if err != nil {
		a.logger.Warn("compaction summary failed", "error", err)
		return
	}

	tokensBefore := 0
	for _, m := range discard {
		tokensBefore += estimateMessageTokens(m)
	}
	if prior != nil {
		tokensBefore += prior.TokensBefore
	}

	summary := &models.CompactionSummaryMessage{
		Summary:      summaryText,
		TokensBefore: tokensBefore,
		CompactedAt:  float64(time.Now().UnixNano()) / float64(time.Second),
	}

	kept := state.Messages[cut:]
	state.Messages = append(models.MessageList{summary}, kept...)
	state.LastCompaction = summary
	a.logger.Info("context compacted",
		"discarded", len(discard), "kept", len(kept), "tokens_before", tokensBefore)
}

// renderTranscript flattens the discard set into the plain-text transcript
// fed to the summary sub-agent.
func renderTranscript(prior *models.CompactionSummaryMessage, msgs models.MessageList) string {
	var b strings.Builder
	if prior != nil {
		b.WriteString("Previous summary:\n" + prior.Summary + "\n\n")
	}
	for _, m := range msgs {
		switch msg := m.(type) {
		case *models.UserMessage:
			b.WriteString("User: " + models.MessageText(msg) + "\n")
		case *models.AssistantMessage:
			if text := models.MessageText(msg); text != "" {
				b.WriteString("Assistant: " + text + "\n")
			}
			for _, call := range msg.ToolCalls {
				b.WriteString(fmt.Sprintf("Assistant called tool: %s(%s)\n", call.Name, call.Arguments))
			}
		case *models.ToolResultMessage:
			verb := "result"
			if msg.IsError {
				verb = "error"
			}
			b.WriteString(fmt.Sprintf("Tool %s %s: %s\n", msg.ToolName, verb, truncate(models.MessageText(msg), 500)))
		case *models.CompactionSummaryMessage:
			b.WriteString("Previous summary:\n" + msg.Summary + "\n")
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

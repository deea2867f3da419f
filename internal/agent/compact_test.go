package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/agentif/agentif/pkg/models"
)

func TestShouldCompactThresholds(t *testing.T) {
	a := newTestAgent(nil)
	a.Compaction.ReserveTokens = 16384
	model := models.Model{ContextWindow: 100000}

	state := models.NewAgentState()
	state.LastCallInputTokens = 5000
	if a.shouldCompact(model, state) {
		t.Error("5000 input tokens must not trigger compaction")
	}

	state.LastCallInputTokens = 90000
	if !a.shouldCompact(model, state) {
		t.Error("90000 input tokens must trigger compaction")
	}

	a.Compaction.Disabled = true
	if a.shouldCompact(model, state) {
		t.Error("disabled compaction triggered")
	}
	a.Compaction.Disabled = false

	if a.shouldCompact(models.Model{}, state) {
		t.Error("unknown context window triggered compaction")
	}
}

func TestFindCutPoint(t *testing.T) {
	// A single user message: the whole suffix is kept, cut at 0.
	if got := findCutPoint(models.MessageList{models.NewUserMessage("hi")}, 1000); got != 0 {
		t.Errorf("single user message cut = %d", got)
	}

	// keepRecent bites: the cut lands on a user message boundary.
	big := strings.Repeat("w", 400) // ~100 tokens per message
	msgs := models.MessageList{
		models.NewUserMessage(big),
		assistantText(big),
		models.NewUserMessage(big),
		assistantText(big),
	}
	got := findCutPoint(msgs, 150)
	if got != 2 {
		t.Errorf("cut = %d, want 2", got)
	}
	if _, ok := msgs[got].(*models.UserMessage); !ok {
		t.Errorf("cut is not a user message")
	}

	// No user boundary at or after the candidate: no cut.
	noUser := models.MessageList{
		models.NewUserMessage(big),
		assistantText(big),
		assistantText(big),
		assistantText(big),
	}
	if got := findCutPoint(noUser, 150); got != -1 {
		t.Errorf("cut without user boundary = %d", got)
	}
}

func assistantText(text string) *models.AssistantMessage {
	m := models.NewAssistantMessage(models.Model{ID: "m"})
	m.AppendText(text, "")
	return m
}

func TestEstimateMessageTokens(t *testing.T) {
	if got := estimateMessageTokens(models.NewUserMessage(strings.Repeat("a", 8))); got != 2 {
		t.Errorf("text estimate = %d, want 2", got)
	}
	img := &models.UserMessage{Content: models.BlockList{&models.ImageBlock{Data: "xx", MimeType: "image/png"}}}
	if got := estimateMessageTokens(img); got != 1000 {
		t.Errorf("image estimate = %d, want 1000", got)
	}
	am := models.NewAssistantMessage(models.Model{ID: "m"})
	am.AddToolCall("c", "tool", strings.Repeat("a", 40), "")
	if got := estimateMessageTokens(am); got != (4+40+3)/4 {
		t.Errorf("tool-call estimate = %d", got)
	}
}

func TestCompactRewritesInPlace(t *testing.T) {
	fake := &fakeStreamer{turns: []scriptedTurn{{deltas: []string{"## Goal\nsummarized"}}}}
	a := newTestAgent(fake)

	big := strings.Repeat("w", 400)
	state := models.NewAgentState()
	state.Append(
		models.NewUserMessage(big),
		assistantText(big),
		models.NewUserMessage(big),
		assistantText(big),
	)
	keptWant := state.Messages[2:]

	a.Compaction.KeepRecentTokens = 150
	tc := &TurnContext{Agent: a, State: state, Emitter: NewEmitter(nil, ""), Abort: NewAbort()}
	a.compact(context.Background(), tc)

	if len(state.Messages) != 3 {
		t.Fatalf("messages = %d, want summary + 2 kept", len(state.Messages))
	}
	summary, ok := state.Messages[0].(*models.CompactionSummaryMessage)
	if !ok {
		t.Fatalf("messages[0] = %#v", state.Messages[0])
	}
	if summary.Summary != "## Goal\nsummarized" {
		t.Errorf("summary = %q", summary.Summary)
	}
	if summary.TokensBefore == 0 {
		t.Error("tokens_before not accumulated")
	}
	for i, want := range keptWant {
		if state.Messages[i+1] != want {
			t.Errorf("kept[%d] changed", i)
		}
	}
	if state.LastCompaction != summary {
		t.Error("last_compaction not set")
	}
}

func TestCompactAccumulatesPriorSummary(t *testing.T) {
	fake := &fakeStreamer{turns: []scriptedTurn{{deltas: []string{"merged"}}}}
	a := newTestAgent(fake)

	big := strings.Repeat("w", 400)
	state := models.NewAgentState()
	state.Append(
		&models.CompactionSummaryMessage{Summary: "old summary", TokensBefore: 500},
		models.NewUserMessage(big),
		assistantText(big),
		models.NewUserMessage(big),
	)
	a.Compaction.KeepRecentTokens = 110

	tc := &TurnContext{Agent: a, State: state, Emitter: NewEmitter(nil, ""), Abort: NewAbort()}
	a.compact(context.Background(), tc)

	summary, ok := state.Messages[0].(*models.CompactionSummaryMessage)
	if !ok || summary.Summary != "merged" {
		t.Fatalf("messages[0] = %#v", state.Messages[0])
	}
	if summary.TokensBefore <= 500 {
		t.Errorf("tokens_before = %d, want prior 500 plus discards", summary.TokensBefore)
	}

	// The update prompt carries the previous summary in the transcript.
	req := fake.request(0)
	if !strings.Contains(req.System, "previous summary") && !strings.Contains(req.System, "Merge") {
		t.Errorf("update prompt variant not used:\n%s", req.System)
	}
	userText := models.MessageText(req.Messages[0])
	if !strings.Contains(userText, "Previous summary:\nold summary") {
		t.Errorf("transcript missing prior summary:\n%s", userText)
	}
}

func TestCompactNoUserBoundaryIsNoop(t *testing.T) {
	fake := &fakeStreamer{}
	a := newTestAgent(fake)

	big := strings.Repeat("w", 400)
	state := models.NewAgentState()
	state.Append(assistantText(big), assistantText(big), assistantText(big))
	before := len(state.Messages)

	a.Compaction.KeepRecentTokens = 100
	tc := &TurnContext{Agent: a, State: state, Emitter: NewEmitter(nil, ""), Abort: NewAbort()}
	a.compact(context.Background(), tc)

	if len(state.Messages) != before || fake.callCount() != 0 {
		t.Error("compaction without a user boundary must be a no-op")
	}
}

func TestCompactFailureLeavesStateUntouched(t *testing.T) {
	fake := &fakeStreamer{turns: []scriptedTurn{{err: errFake("summary failed")}}}
	a := newTestAgent(fake)

	big := strings.Repeat("w", 400)
	state := models.NewAgentState()
	state.Append(
		models.NewUserMessage(big),
		assistantText(big),
		models.NewUserMessage(big),
	)
	before := append(models.MessageList(nil), state.Messages...)

	a.Compaction.KeepRecentTokens = 110
	tc := &TurnContext{Agent: a, State: state, Emitter: NewEmitter(nil, ""), Abort: NewAbort()}
	a.compact(context.Background(), tc)

	if len(state.Messages) != len(before) {
		t.Fatalf("state mutated on failure: %d messages", len(state.Messages))
	}
	for i := range before {
		if state.Messages[i] != before[i] {
			t.Errorf("message %d changed", i)
		}
	}
	if state.LastCompaction != nil {
		t.Error("last_compaction set on failure")
	}
}

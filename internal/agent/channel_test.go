package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/agentif/agentif/internal/channels"
	"github.com/agentif/agentif/pkg/models"
)

func TestChannelStreamsAssistantText(t *testing.T) {
	fake := &fakeStreamer{turns: []scriptedTurn{{deltas: []string{"hel", "lo"}}}}
	a := newTestAgent(fake)
	ch := &channels.StreamTestChannel{ID: "ch-1"}

	if _, err := a.Evaluate(context.Background(), TextInput("hi"), WithEvalChannel(ch)); err != nil {
		t.Fatal(err)
	}

	started, finished, closed, deltas := ch.Snapshot()
	if started != 1 || finished != 1 {
		t.Errorf("started=%d finished=%d", started, finished)
	}
	if closed != 1 {
		t.Errorf("closed=%d, want exactly 1", closed)
	}
	if got := strings.Join(deltas, ""); got != "hello" {
		t.Errorf("streamed text = %q", got)
	}
}

func TestChannelNoReplySentinelSuppresses(t *testing.T) {
	fake := &fakeStreamer{turns: []scriptedTurn{{deltas: []string{channels.NoReplySentinel + " nothing to add"}}}}
	a := newTestAgent(fake)
	ch := &channels.StreamTestChannel{ID: "ch-1", Group: true}

	state, err := a.Evaluate(context.Background(), TextInput("hi"), WithEvalChannel(ch))
	if err != nil {
		t.Fatal(err)
	}

	started, finished, closed, deltas := ch.Snapshot()
	if started != 0 || finished != 0 {
		t.Errorf("suppressed message reached the channel: started=%d finished=%d", started, finished)
	}
	if len(deltas) != 0 {
		t.Errorf("deltas = %v", deltas)
	}
	if closed != 1 {
		t.Errorf("closed=%d, want exactly 1", closed)
	}

	// The state still records the full assistant message.
	if got := models.MessageText(state.Messages[1]); !strings.HasPrefix(got, channels.NoReplySentinel) {
		t.Errorf("assistant text = %q", got)
	}
}

func TestChannelClosedOnceAcrossTurns(t *testing.T) {
	fake := &fakeStreamer{turns: []scriptedTurn{
		{toolCalls: []models.ToolCall{{ID: "c1", Name: "echo", Arguments: `{"text":"x"}`}}},
		{deltas: []string{"after tools"}},
	}}
	a := newTestAgent(fake)
	if err := a.RegisterTool(echoTool()); err != nil {
		t.Fatal(err)
	}
	ch := &channels.StreamTestChannel{ID: "ch-1"}

	if _, err := a.Evaluate(context.Background(), TextInput("go"), WithEvalChannel(ch)); err != nil {
		t.Fatal(err)
	}

	started, finished, closed, deltas := ch.Snapshot()
	if closed != 1 {
		t.Errorf("closed=%d across a multi-turn evaluation, want 1", closed)
	}
	// Only the final text-bearing message streams.
	if started != 1 || finished != 1 {
		t.Errorf("started=%d finished=%d", started, finished)
	}
	if got := strings.Join(deltas, ""); got != "after tools" {
		t.Errorf("streamed text = %q", got)
	}
}

func TestChannelClosedOnError(t *testing.T) {
	a := newTestAgent(nil) // nil streamer makes the first turn fatal
	ch := &channels.StreamTestChannel{ID: "ch-1"}

	if _, err := a.Evaluate(context.Background(), TextInput("hi"), WithEvalChannel(ch)); err == nil {
		t.Fatal("expected fatal error")
	}
	if _, _, closed, _ := ch.Snapshot(); closed != 1 {
		t.Errorf("closed=%d after error, want 1", closed)
	}
}

package channels

import (
	"context"
	"testing"

	"github.com/agentif/agentif/pkg/models"
)

func TestHasNoReplySentinel(t *testing.T) {
	if !HasNoReplySentinel("∅") {
		t.Error("bare sentinel not detected")
	}
	if !HasNoReplySentinel("∅ nothing to say") {
		t.Error("sentinel prefix not detected")
	}
	if HasNoReplySentinel("hello ∅") {
		t.Error("mid-string sentinel should not suppress")
	}
	if HasNoReplySentinel("") {
		t.Error("empty delta should not suppress")
	}
}

func TestFlags(t *testing.T) {
	if got := Flags(nil); got != 0 {
		t.Errorf("Flags(nil) = %d", got)
	}
	ch := &StreamTestChannel{Private: true}
	if got := Flags(ch); got != models.ChannelFlagPrivate {
		t.Errorf("private Flags = %#x", got)
	}
	ch = &StreamTestChannel{Group: true, Private: true}
	if got := Flags(ch); got != models.ChannelFlagPrivate|models.ChannelFlagGroup {
		t.Errorf("combined Flags = %#x", got)
	}
}

func TestStreamTestChannelRecords(t *testing.T) {
	ctx := context.Background()
	ch := &StreamTestChannel{ID: "c1"}
	if err := ch.StartStreaming(ctx); err != nil {
		t.Fatal(err)
	}
	_ = ch.AppendToStream(ctx, "he")
	_ = ch.AppendToStream(ctx, "llo")
	_ = ch.FinishStreaming(ctx)
	_ = ch.CloseChannel(ctx)

	started, finished, closed, deltas := ch.Snapshot()
	if started != 1 || finished != 1 || closed != 1 {
		t.Errorf("counts = %d/%d/%d", started, finished, closed)
	}
	if len(deltas) != 2 || deltas[0]+deltas[1] != "hello" {
		t.Errorf("deltas = %v", deltas)
	}
}

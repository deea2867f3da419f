package agent

import (
	"testing"

	"github.com/agentif/agentif/pkg/models"
)

func TestEmitterSnapshotsMessagePayloads(t *testing.T) {
	sink := &CollectorSink{}
	e := NewEmitter(sink, "eval-1")

	msg := models.NewAssistantMessage(testModel())
	msg.AppendText("hello", "")
	e.MessageStart(models.RoleAssistant, msg)

	msg.AppendText(" world", "")
	e.MessageUpdate(models.RoleAssistant, msg, models.UpdateText, " world", "")

	events := sink.Events()
	if got := models.MessageText(events[0].Message); got != "hello" {
		t.Errorf("MessageStart snapshot = %q, want the text at emit time", got)
	}
	if got := models.MessageText(events[1].Message); got != "hello world" {
		t.Errorf("MessageUpdate snapshot = %q, want hello world", got)
	}
	if events[0].Message == models.Message(msg) {
		t.Error("event carries the live message pointer")
	}
}

func TestEmitterSnapshotsTurnEnd(t *testing.T) {
	sink := &CollectorSink{}
	e := NewEmitter(sink, "eval-1")

	msg := models.NewAssistantMessage(testModel())
	msg.AppendText("done", "")
	e.TurnEnd("turn-1", msg, nil)

	msg.AppendText(" and more", "")
	if got := models.MessageText(sink.Events()[0].Message); got != "done" {
		t.Errorf("TurnEnd snapshot = %q, want done", got)
	}
}

func TestEmitterSnapshotsToolExecutionEnd(t *testing.T) {
	sink := &CollectorSink{}
	e := NewEmitter(sink, "eval-1")

	result := models.NewToolResultMessage("c1", "lookup", "found", false)
	e.ToolExecutionEnd(models.ToolCall{ID: "c1", Name: "lookup"}, result, 3)

	result.Content[0].(*models.TextBlock).Text = "mutated"
	if got := models.MessageText(sink.Events()[0].Result); got != "found" {
		t.Errorf("ToolExecutionEnd snapshot = %q, want found", got)
	}
}

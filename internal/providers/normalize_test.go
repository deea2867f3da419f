package providers

import (
	"strings"
	"testing"

	"github.com/agentif/agentif/pkg/models"
)

func completionsModel(provider, id string) models.Model {
	return models.Model{
		ID:       id,
		Provider: provider,
		API:      models.APIOpenAICompletions,
	}
}

func TestScopeSignaturesStripsForeignSignatures(t *testing.T) {
	local := completionsModel("openai", "gpt-4o")
	foreign := completionsModel("anthropic", "claude-x")

	ours := models.NewAssistantMessage(local)
	ours.AppendThinking("kept", "sig-local")
	theirs := models.NewAssistantMessage(foreign)
	theirs.AppendThinking("stripped", "sig-foreign")

	out := NormalizeThread(models.MessageList{ours, theirs}, local, nil)

	keptSig := out[0].(*models.AssistantMessage).Content[0].BlockSignature()
	if keptSig != "sig-local" {
		t.Errorf("local signature = %q, want sig-local", keptSig)
	}
	strippedSig := out[1].(*models.AssistantMessage).Content[0].BlockSignature()
	if strippedSig != "" {
		t.Errorf("foreign signature = %q, want empty", strippedSig)
	}
	if theirs.Content[0].BlockSignature() != "sig-foreign" {
		t.Error("input message was mutated")
	}
	if models.MessageThinking(out[1]) != "stripped" {
		t.Error("thinking text lost while stripping signature")
	}
}

func TestRepairToolPairingSynthesizesMissingResults(t *testing.T) {
	model := completionsModel("openai", "gpt-4o")
	assistant := models.NewAssistantMessage(model)
	assistant.AddToolCall("c1", "lookup", `{"q":1}`, "")
	assistant.AddToolCall("c2", "fetch", `{"q":2}`, "")

	thread := models.MessageList{
		models.NewUserMessage("go"),
		assistant,
		models.NewToolResultMessage("c2", "fetch", "fetched", false),
		models.NewUserMessage("next"),
	}

	out := NormalizeThread(thread, model, nil)
	if len(out) != 5 {
		t.Fatalf("len = %d, want 5", len(out))
	}

	first, ok := out[2].(*models.ToolResultMessage)
	if !ok || first.CallID != "c1" {
		t.Fatalf("out[2] = %#v, want synthetic result for c1", out[2])
	}
	if !first.IsError || models.MessageText(first) != "No result provided" {
		t.Errorf("synthetic result = %q isError=%v", models.MessageText(first), first.IsError)
	}
	second := out[3].(*models.ToolResultMessage)
	if second.CallID != "c2" || models.MessageText(second) != "fetched" {
		t.Errorf("out[3] = %q for %q, want real c2 result", models.MessageText(second), second.CallID)
	}
}

func TestRepairToolPairingDropsOrphanResults(t *testing.T) {
	model := completionsModel("openai", "gpt-4o")
	thread := models.MessageList{
		models.NewUserMessage("hi"),
		models.NewToolResultMessage("ghost", "lookup", "orphan", false),
	}
	out := NormalizeThread(thread, model, nil)
	if len(out) != 1 {
		t.Fatalf("len = %d, want orphan result dropped", len(out))
	}
}

func TestRewriteToolIDsConsistentAcrossCallAndResult(t *testing.T) {
	model := completionsModel("mistral", "mistral-large")
	assistant := models.NewAssistantMessage(model)
	assistant.AddToolCall("call_abc-123!", "lookup", "{}", "")

	thread := models.MessageList{
		assistant,
		models.NewToolResultMessage("call_abc-123!", "lookup", "ok", false),
	}
	out := NormalizeThread(thread, model, alphanumericToolID)

	am := out[0].(*models.AssistantMessage)
	tr := out[1].(*models.ToolResultMessage)
	if am.ToolCalls[0].ID != tr.CallID {
		t.Errorf("call id %q != result id %q", am.ToolCalls[0].ID, tr.CallID)
	}
	if len(am.ToolCalls[0].ID) != 9 {
		t.Errorf("rewritten id %q, want 9 characters", am.ToolCalls[0].ID)
	}
	block := am.Content[0].(*models.ToolCallBlock)
	if block.ID != am.ToolCalls[0].ID {
		t.Errorf("block id %q != flat list id %q", block.ID, am.ToolCalls[0].ID)
	}
	if assistant.ToolCalls[0].ID != "call_abc-123!" {
		t.Error("input assistant message was mutated")
	}
}

func TestRewriteToolIDsCollision(t *testing.T) {
	model := completionsModel("mistral", "mistral-large")
	a1 := models.NewAssistantMessage(model)
	a1.AddToolCall("call_abc", "lookup", "{}", "")
	a2 := models.NewAssistantMessage(model)
	a2.AddToolCall("call-abc", "lookup", "{}", "")

	thread := models.MessageList{
		a1,
		models.NewToolResultMessage("call_abc", "lookup", "one", false),
		a2,
		models.NewToolResultMessage("call-abc", "lookup", "two", false),
	}
	out := NormalizeThread(thread, model, alphanumericToolID)

	id1 := out[0].(*models.AssistantMessage).ToolCalls[0].ID
	id2 := out[2].(*models.AssistantMessage).ToolCalls[0].ID
	if id1 == id2 {
		t.Fatalf("colliding transforms both mapped to %q", id1)
	}
	if out[3].(*models.ToolResultMessage).CallID != id2 {
		t.Error("second result did not follow its rewritten call id")
	}
}

func TestAlphanumericToolID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"call_aBc123XYZ789", "123XYZ789"},
		{"ab", "ab0000000"},
		{"call_!!", "call00000"},
		{"123456789", "123456789"},
	}
	for _, tt := range tests {
		if got := alphanumericToolID(tt.in); got != tt.want {
			t.Errorf("alphanumericToolID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeAndTruncateToolID(t *testing.T) {
	if got := sanitizeToolID("tool.call id#7"); got != "tool_call_id_7" {
		t.Errorf("sanitizeToolID = %q", got)
	}
	long := strings.Repeat("a", 50)
	if got := truncateToolID(long, 40); len(got) != 40 {
		t.Errorf("truncateToolID length = %d, want 40", len(got))
	}
	if got := truncateToolID("short", 40); got != "short" {
		t.Errorf("truncateToolID(short) = %q", got)
	}
}

func TestCompletionsToolIDTransformSelection(t *testing.T) {
	if completionsToolIDTransform(completionsModel("mistral", "m")) == nil {
		t.Error("mistral should rewrite tool ids")
	}
	if completionsToolIDTransform(completionsModel("minimax", "m")) == nil {
		t.Error("minimax should rewrite tool ids")
	}
	if completionsToolIDTransform(completionsModel("openai", "gpt-4o")) != nil {
		t.Error("openai should pass ids through")
	}
	copilot := completionsToolIDTransform(completionsModel("github-copilot", "claude-sonnet"))
	if copilot == nil {
		t.Fatal("copilot claude models should sanitize ids")
	}
	if got := copilot("a.b"); got != "a_b" {
		t.Errorf("copilot transform = %q, want a_b", got)
	}
	if completionsToolIDTransform(completionsModel("github-copilot", "gpt-4o")) != nil {
		t.Error("copilot non-claude models should pass ids through")
	}
}

func TestValidThoughtSignature(t *testing.T) {
	tests := []struct {
		sig  string
		want bool
	}{
		{"", false},
		{"abc", false},
		{"YWJj", true},
		{"!!!!", false},
	}
	for _, tt := range tests {
		if got := validThoughtSignature(tt.sig); got != tt.want {
			t.Errorf("validThoughtSignature(%q) = %v, want %v", tt.sig, got, tt.want)
		}
	}
}

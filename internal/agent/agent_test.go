package agent

import (
	"context"
	"sync"

	"github.com/agentif/agentif/pkg/models"
)

// scriptedTurn is one provider call as played back by fakeStreamer.
type scriptedTurn struct {
	deltas    []string
	toolCalls []models.ToolCall
	err       error
	usage     models.Usage
}

// fakeStreamer plays back scripted turns, emitting the same event flow a
// real adapter would.
type fakeStreamer struct {
	mu       sync.Mutex
	turns    []scriptedTurn
	calls    int
	requests []*StreamRequest
}

func (f *fakeStreamer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStreamer) request(i int) *StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeStreamer) Stream(_ context.Context, req *StreamRequest) (*StreamResult, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	turn := scriptedTurn{deltas: []string{"ok"}}
	if idx < len(f.turns) {
		turn = f.turns[idx]
	} else if len(f.turns) > 0 {
		turn = f.turns[len(f.turns)-1]
	}
	if turn.err != nil {
		return nil, turn.err
	}

	msg := models.NewAssistantMessage(req.Model)
	req.Emitter.MessageStart(models.RoleAssistant, msg)
	for _, delta := range turn.deltas {
		msg.AppendText(delta, "")
		req.Emitter.MessageUpdate(models.RoleAssistant, msg, models.UpdateText, delta, "")
	}
	for _, call := range turn.toolCalls {
		msg.AddToolCall(call.ID, call.Name, call.Arguments, "")
	}
	req.Emitter.MessageEnd(models.RoleAssistant, msg)
	for _, call := range turn.toolCalls {
		req.Emitter.ToolCallRequest(call)
	}

	stop := models.StopReasonStop
	if len(turn.toolCalls) > 0 {
		stop = models.StopReasonToolCalls
	}
	usage := turn.usage
	if usage == (models.Usage{}) {
		usage = models.Usage{Input: 10, Output: 5, Total: 15}
	}
	return &StreamResult{Message: msg, Usage: usage, StopReason: stop}, nil
}

func testModel() models.Model {
	return models.Model{
		ID:            "test-model",
		Provider:      "testing",
		API:           models.APIOpenAICompletions,
		ContextWindow: 100000,
	}
}

func newTestAgent(streamer Streamer) *Agent {
	return New(Config{
		Name:         "tester",
		SystemPrompt: "You are a test agent.",
		Model:        testModel(),
		APIKey:       "n/a",
		Streamer:     streamer,
	})
}

func userTexts(msgs models.MessageList) []string {
	var out []string
	for _, m := range msgs {
		if um, ok := m.(*models.UserMessage); ok {
			out = append(out, models.MessageText(um))
		}
	}
	return out
}

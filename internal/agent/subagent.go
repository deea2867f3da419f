package agent

import (
	"context"
	"errors"

	"github.com/agentif/agentif/pkg/models"
)

// runSubAgent issues one minimal provider call (no tools, no middlewares,
// no event sink) and returns the response text. The compaction engine and
// the model-backed guardrail both run through it.
func runSubAgent(ctx context.Context, streamer Streamer, model models.Model, apiKey, system, userText string) (string, error) {
	if streamer == nil {
		return "", errors.New("no streamer available for sub-agent call")
	}

	req := &StreamRequest{
		Model:    model,
		APIKey:   apiKey,
		System:   system,
		Messages: models.MessageList{models.NewUserMessage(userText)},
		Emitter:  NewEmitter(NopSink, ""),
	}
	res, err := streamer.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	return models.MessageText(res.Message), nil
}

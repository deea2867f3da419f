package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentif/agentif/internal/agent"
	"github.com/agentif/agentif/pkg/models"
)

const anthropicDefaultMaxTokens = 8192

// anthropicAdapter speaks the Anthropic Messages API through the official
// SDK.
type anthropicAdapter struct {
	httpClient *http.Client
}

func (a *anthropicAdapter) stream(ctx context.Context, req *agent.StreamRequest) (*agent.StreamResult, error) {
	client := a.client(req)
	params, err := buildAnthropicParams(req)
	if err != nil {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
	}

	if req.HTTP.DisableStreaming {
		return a.complete(ctx, client, req, params)
	}

	stream := client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	asm := newAssembler(req)
	var usage models.Usage
	var stop string
	var responseID string

	// Tool-use block being accumulated, keyed by block index.
	type pendingTool struct {
		id, name  string
		args      strings.Builder
		signature string
	}
	pending := map[int64]*pendingTool{}
	thinkingIndex := int64(-1)

	for stream.Next() {
		if err := asm.checkAbort(); err != nil {
			return nil, err
		}
		event := stream.Current()

		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			responseID = start.Message.ID
			usage.Input = int(start.Message.Usage.InputTokens)
			usage.CacheRead = int(start.Message.Usage.CacheReadInputTokens)
			usage.CacheWrite = int(start.Message.Usage.CacheCreationInputTokens)

		case "content_block_start":
			blockStart := event.AsContentBlockStart()
			switch blockStart.ContentBlock.Type {
			case "tool_use":
				toolUse := blockStart.ContentBlock.AsToolUse()
				pending[blockStart.Index] = &pendingTool{id: toolUse.ID, name: toolUse.Name}
			case "thinking":
				thinkingIndex = blockStart.Index
			}

		case "content_block_delta":
			blockDelta := event.AsContentBlockDelta()
			switch blockDelta.Delta.Type {
			case "text_delta":
				asm.text(blockDelta.Delta.Text)
			case "thinking_delta":
				asm.thinking(blockDelta.Delta.Thinking, "")
			case "signature_delta":
				if blockDelta.Index == thinkingIndex {
					asm.thinking("", blockDelta.Delta.Signature)
				}
			case "input_json_delta":
				if tool := pending[blockDelta.Index]; tool != nil {
					tool.args.WriteString(blockDelta.Delta.PartialJSON)
					asm.toolArguments(blockDelta.Delta.PartialJSON, tool.id)
				}
			}

		case "content_block_stop":
			blockStop := event.AsContentBlockStop()
			if tool := pending[blockStop.Index]; tool != nil {
				asm.toolCall(tool.id, tool.name, tool.args.String(), tool.signature)
				delete(pending, blockStop.Index)
			}
			if blockStop.Index == thinkingIndex {
				thinkingIndex = -1
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			stop = string(messageDelta.Delta.StopReason)
			usage.Output = int(messageDelta.Usage.OutputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		asm.end()
		return nil, wrapAnthropicError(req.Model, err)
	}

	// A stream that closed mid-block still surfaces its tool calls.
	for _, tool := range pending {
		asm.toolCall(tool.id, tool.name, tool.args.String(), tool.signature)
	}
	return asm.result(stop, usage, responseID), nil
}

// complete is the non-streaming fallback, synthesizing the streaming event
// flow from the final message body.
func (a *anthropicAdapter) complete(ctx context.Context, client anthropic.Client, req *agent.StreamRequest, params anthropic.MessageNewParams) (*agent.StreamResult, error) {
	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAnthropicError(req.Model, err)
	}

	asm := newAssembler(req)
	if err := asm.checkAbort(); err != nil {
		return nil, err
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			asm.text(block.AsText().Text)
		case "thinking":
			thinking := block.AsThinking()
			asm.thinking(thinking.Thinking, thinking.Signature)
		case "tool_use":
			toolUse := block.AsToolUse()
			asm.toolCall(toolUse.ID, toolUse.Name, string(toolUse.Input), "")
		}
	}

	usage := models.Usage{
		Input:      int(msg.Usage.InputTokens),
		Output:     int(msg.Usage.OutputTokens),
		CacheRead:  int(msg.Usage.CacheReadInputTokens),
		CacheWrite: int(msg.Usage.CacheCreationInputTokens),
	}
	return asm.result(string(msg.StopReason), usage, msg.ID), nil
}

func (a *anthropicAdapter) client(req *agent.StreamRequest) anthropic.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(req.APIKey),
		option.WithHTTPClient(a.httpClient),
	}
	if req.Model.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(req.Model.BaseURL))
	}
	for k, v := range req.Model.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	return anthropic.NewClient(opts...)
}

func buildAnthropicParams(req *agent.StreamRequest) (anthropic.MessageNewParams, error) {
	thread := NormalizeThread(req.Messages, req.Model, anthropicToolID)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model.ID),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	messages, err := convertAnthropicMessages(thread)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params.Messages = messages

	for _, spec := range req.Tools {
		var schema anthropic.ToolInputSchemaParam
		raw, err := json.Marshal(spec.Parameters)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		if err := json.Unmarshal(raw, &schema); err != nil {
			return anthropic.MessageNewParams{}, err
		}
		tool := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if tool.OfTool != nil {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		params.Tools = append(params.Tools, tool)
	}
	return params, nil
}

func convertAnthropicMessages(thread models.MessageList) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range thread {
		switch msg := m.(type) {
		case *models.UserMessage:
			content := anthropicContentBlocks(msg.Content)
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.NewUserMessage(content...))

		case *models.AssistantMessage:
			var content []anthropic.ContentBlockParamUnion
			for _, b := range msg.Content {
				switch block := b.(type) {
				case *models.TextBlock:
					if block.Text != "" {
						content = append(content, anthropic.NewTextBlock(block.Text))
					}
				case *models.ThinkingBlock:
					if block.Signature != "" {
						content = append(content, anthropic.NewThinkingBlock(block.Signature, block.Thinking))
					}
				case *models.ToolCallBlock:
					var input map[string]any
					if err := json.Unmarshal([]byte(block.Arguments), &input); err != nil {
						input = map[string]any{}
					}
					content = append(content, anthropic.NewToolUseBlock(block.ID, input, block.Name))
				}
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(content...))

		case *models.ToolResultMessage:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.CallID, models.MessageText(msg), msg.IsError),
			))

		case *models.CompactionSummaryMessage:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewTextBlock(compactionSummaryAsText(msg)),
			))
		}
	}
	return out, nil
}

func anthropicContentBlocks(blocks models.BlockList) []anthropic.ContentBlockParamUnion {
	var out []anthropic.ContentBlockParamUnion
	for _, b := range blocks {
		switch block := b.(type) {
		case *models.TextBlock:
			if block.Text != "" {
				out = append(out, anthropic.NewTextBlock(block.Text))
			}
		case *models.ImageBlock:
			out = append(out, anthropic.NewImageBlockBase64(block.MimeType, block.Data))
		}
	}
	return out
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func wrapAnthropicError(model models.Model, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := &ProviderError{
			Provider: model.Provider,
			Model:    model.ID,
			Cause:    err,
			Reason:   FailoverUnknown,
		}
		pe = pe.WithStatus(apiErr.StatusCode)
		var body anthropicErrorBody
		if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &body) == nil {
			if body.Error.Message != "" {
				pe = pe.WithMessage(body.Error.Message)
			}
			if body.Error.Type != "" {
				pe = pe.WithCode(body.Error.Type)
			}
		}
		return pe
	}
	return NewProviderError(model.Provider, model.ID, err)
}

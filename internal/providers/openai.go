package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentif/agentif/internal/agent"
	"github.com/agentif/agentif/pkg/models"
)

// fillerAssistantText bridges a tool result and the next user message on
// backends that reject that sequence.
const fillerAssistantText = "OK"

// completionsAdapter speaks the OpenAI Chat Completions protocol and its
// many compatible backends.
type completionsAdapter struct {
	httpClient *http.Client
}

func (a *completionsAdapter) stream(ctx context.Context, req *agent.StreamRequest) (*agent.StreamResult, error) {
	compat := DetectCompat(req.Model)
	client := a.client(req, compat)

	chatReq, err := buildCompletionsRequest(req, compat)
	if err != nil {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
	}

	if req.HTTP.DisableStreaming {
		return a.complete(ctx, client, req, chatReq)
	}

	chatReq.Stream = true
	if compat.SupportsUsageInStreaming {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	stream, err := client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, wrapOpenAIError(req.Model, err)
	}
	defer stream.Close()

	asm := newAssembler(req)
	pending := map[int]*models.ToolCall{}
	var order []int
	var finish string
	var usage models.Usage

	flushToolCalls := func() {
		sort.Ints(order)
		for _, idx := range order {
			tc := pending[idx]
			asm.toolCall(tc.ID, tc.Name, tc.Arguments, "")
		}
		pending = map[int]*models.ToolCall{}
		order = nil
	}

	for {
		if err := asm.checkAbort(); err != nil {
			return nil, err
		}
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			asm.end()
			return nil, wrapOpenAIError(req.Model, err)
		}

		if resp.Usage != nil {
			usage = convertOpenAIUsage(*resp.Usage)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			finish = string(choice.FinishReason)
		}

		delta := choice.Delta
		asm.thinking(delta.ReasoningContent, "")
		asm.text(delta.Content)

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			cur := pending[idx]
			if cur == nil {
				cur = &models.ToolCall{}
				pending[idx] = cur
				order = append(order, idx)
			}
			if tc.ID != "" {
				cur.ID = tc.ID
			}
			if tc.Function.Name != "" {
				cur.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				cur.Arguments += tc.Function.Arguments
				asm.toolArguments(tc.Function.Arguments, cur.ID)
			}
		}
	}

	flushToolCalls()
	return asm.result(finish, usage, ""), nil
}

// complete is the non-streaming fallback: one request, the same event flow
// synthesized from the final body.
func (a *completionsAdapter) complete(ctx context.Context, client *openai.Client, req *agent.StreamRequest, chatReq openai.ChatCompletionRequest) (*agent.StreamResult, error) {
	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, wrapOpenAIError(req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, errors.New("response carried no choices"))
	}

	asm := newAssembler(req)
	if err := asm.checkAbort(); err != nil {
		return nil, err
	}
	choice := resp.Choices[0]
	asm.thinking(choice.Message.ReasoningContent, "")
	asm.text(choice.Message.Content)
	for _, tc := range choice.Message.ToolCalls {
		asm.toolCall(tc.ID, tc.Function.Name, tc.Function.Arguments, "")
	}
	return asm.result(string(choice.FinishReason), convertOpenAIUsage(resp.Usage), ""), nil
}

func (a *completionsAdapter) client(req *agent.StreamRequest, compat CompletionsCompat) *openai.Client {
	cfg := openai.DefaultConfig(req.APIKey)
	if req.Model.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(req.Model.BaseURL, "/")
	}
	httpClient := clientWithHeaders(a.httpClient, req.Model.Headers)
	if compat.ThinkingFormat == ThinkingFormatZAI {
		// The SDK's request struct has no slot for ZAI's top-level thinking
		// field, so it is spliced into the body on the way out.
		httpClient = clientWithBodyField(httpClient, "thinking", json.RawMessage(`{"type":"enabled"}`))
	}
	cfg.HTTPClient = httpClient
	return openai.NewClientWithConfig(cfg)
}

func buildCompletionsRequest(req *agent.StreamRequest, compat CompletionsCompat) (openai.ChatCompletionRequest, error) {
	transform := completionsToolIDTransform(req.Model)
	if compat.RequiresMistralToolIds {
		transform = alphanumericToolID
	}
	thread := NormalizeThread(req.Messages, req.Model, transform)

	messages, err := convertCompletionsMessages(thread, req.System, compat)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model.ID,
		Messages: messages,
	}
	if compat.SupportsStore {
		chatReq.Store = true
	}
	if compat.SupportsReasoningEffort && req.Model.ReasoningEffort != "" {
		chatReq.ReasoningEffort = req.Model.ReasoningEffort
	}
	if req.MaxTokens > 0 {
		if compat.MaxTokensField == MaxCompletionTokensField {
			chatReq.MaxCompletionTokens = req.MaxTokens
		} else {
			chatReq.MaxTokens = req.MaxTokens
		}
	}
	for _, spec := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Strict:      spec.Strict,
				Parameters:  spec.Parameters,
			},
		})
	}
	return chatReq, nil
}

func convertCompletionsMessages(thread models.MessageList, system string, compat CompletionsCompat) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(thread)+1)
	if system != "" {
		role := openai.ChatMessageRoleSystem
		if compat.SupportsDeveloperRole {
			role = openai.ChatMessageRoleDeveloper
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: system})
	}

	lastWasToolResult := false
	for _, m := range thread {
		switch msg := m.(type) {
		case *models.UserMessage:
			if compat.RequiresAssistantAfterToolResult && lastWasToolResult {
				out = append(out, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: fillerAssistantText,
				})
			}
			lastWasToolResult = false
			out = append(out, convertCompletionsUserMessage(msg))

		case *models.AssistantMessage:
			lastWasToolResult = false
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			text := models.MessageText(msg)
			if compat.RequiresThinkingAsText {
				if thinking := models.MessageThinking(msg); thinking != "" {
					text = thinking + "\n" + text
				}
			}
			oaiMsg.Content = text
			for _, call := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			out = append(out, oaiMsg)

		case *models.ToolResultMessage:
			lastWasToolResult = true
			oaiMsg := openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    models.MessageText(msg),
				ToolCallID: msg.CallID,
			}
			if compat.RequiresToolResultName {
				oaiMsg.Name = msg.ToolName
			}
			out = append(out, oaiMsg)

		case *models.CompactionSummaryMessage:
			lastWasToolResult = false
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: compactionSummaryAsText(msg),
			})

		default:
			return nil, fmt.Errorf("unsupported message type %q", m.MessageType())
		}
	}
	return out, nil
}

func convertCompletionsUserMessage(msg *models.UserMessage) openai.ChatCompletionMessage {
	hasImages := false
	for _, b := range msg.Content {
		if _, ok := b.(*models.ImageBlock); ok {
			hasImages = true
			break
		}
	}
	if !hasImages {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: models.MessageText(msg),
		}
	}

	var parts []openai.ChatMessagePart
	for _, b := range msg.Content {
		switch block := b.(type) {
		case *models.TextBlock:
			if block.Text != "" {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: block.Text,
				})
			}
		case *models.ImageBlock:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + block.MimeType + ";base64," + block.Data,
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

func compactionSummaryAsText(msg *models.CompactionSummaryMessage) string {
	return "Summary of the conversation so far:\n\n" + msg.Summary
}

func convertOpenAIUsage(u openai.Usage) models.Usage {
	usage := models.Usage{
		Input:  u.PromptTokens,
		Output: u.CompletionTokens,
		Total:  u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CacheRead = u.PromptTokensDetails.CachedTokens
		usage.Input -= u.PromptTokensDetails.CachedTokens
	}
	return usage
}

func wrapOpenAIError(model models.Model, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := &ProviderError{
			Provider: model.Provider,
			Model:    model.ID,
			Cause:    err,
			Reason:   FailoverUnknown,
		}
		pe = pe.WithStatus(apiErr.HTTPStatusCode).WithMessage(apiErr.Message)
		if code, ok := apiErr.Code.(string); ok {
			pe = pe.WithCode(code)
		}
		return pe
	}
	return NewProviderError(model.Provider, model.ID, err)
}

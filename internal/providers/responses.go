package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/agentif/agentif/internal/agent"
	"github.com/agentif/agentif/pkg/models"
)

const openAIResponsesURL = "https://api.openai.com/v1/responses"

// responsesAdapter speaks the OpenAI Responses API over raw SSE. Server-side
// conversation state is chained through previous_response_id.
type responsesAdapter struct {
	httpClient *http.Client
}

type responsesRequest struct {
	Model              string            `json:"model"`
	Input              []json.RawMessage `json:"input"`
	Instructions       string            `json:"instructions,omitempty"`
	MaxOutputTokens    int               `json:"max_output_tokens,omitempty"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	Stream             bool              `json:"stream"`
	Store              bool              `json:"store"`
	Tools              []responsesTool   `json:"tools,omitempty"`
}

type responsesTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      bool           `json:"strict,omitempty"`
}

type responsesEvent struct {
	Type   string `json:"type"`
	Delta  string `json:"delta"`
	ItemID string `json:"item_id"`
	Item   struct {
		Type      string `json:"type"`
		ID        string `json:"id"`
		CallID    string `json:"call_id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"item"`
	Response struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		IncompleteDetails struct {
			Reason string `json:"reason"`
		} `json:"incomplete_details"`
		Usage struct {
			InputTokens        int `json:"input_tokens"`
			OutputTokens       int `json:"output_tokens"`
			TotalTokens        int `json:"total_tokens"`
			InputTokensDetails struct {
				CachedTokens int `json:"cached_tokens"`
			} `json:"input_tokens_details"`
		} `json:"usage"`
	} `json:"response"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *responsesAdapter) stream(ctx context.Context, req *agent.StreamRequest) (*agent.StreamResult, error) {
	body, err := buildResponsesRequest(req)
	if err != nil {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
	}

	url := openAIResponsesURL
	if req.Model.BaseURL != "" {
		url = strings.TrimSuffix(req.Model.BaseURL, "/") + "/responses"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range req.Model.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readHTTPError(req.Model, resp)
	}

	asm := newAssembler(req)
	// Function-call items in flight, keyed by item id.
	type pendingCall struct {
		callID, name string
		args         strings.Builder
	}
	pending := map[string]*pendingCall{}
	var usage models.Usage
	var stop, responseID string
	var streamErr error

	err = scanSSE(resp.Body, func(_, data string) error {
		if err := asm.checkAbort(); err != nil {
			return err
		}
		if data == "" || data == "[DONE]" {
			return nil
		}
		var ev responsesEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil // tolerate unknown payloads
		}

		switch ev.Type {
		case "response.created":
			responseID = ev.Response.ID

		case "response.output_text.delta":
			asm.text(ev.Delta)

		case "response.reasoning_summary_text.delta", "response.reasoning_text.delta":
			asm.thinking(ev.Delta, "")

		case "response.refusal.delta":
			asm.refusal(ev.Delta)

		case "response.output_item.added":
			if ev.Item.Type == "function_call" {
				pending[ev.Item.ID] = &pendingCall{callID: ev.Item.CallID, name: ev.Item.Name}
			}

		case "response.function_call_arguments.delta":
			if call := pending[ev.ItemID]; call != nil {
				call.args.WriteString(ev.Delta)
				asm.toolArguments(ev.Delta, call.callID)
			}

		case "response.output_item.done":
			if call := pending[ev.Item.ID]; call != nil {
				args := call.args.String()
				if ev.Item.Arguments != "" {
					args = ev.Item.Arguments
				}
				asm.toolCall(call.callID, call.name, args, "")
				delete(pending, ev.Item.ID)
			}

		case "response.completed", "response.incomplete":
			responseID = ev.Response.ID
			stop = responsesStopReason(ev.Response.Status, ev.Response.IncompleteDetails.Reason)
			usage = models.Usage{
				Input:     ev.Response.Usage.InputTokens - ev.Response.Usage.InputTokensDetails.CachedTokens,
				Output:    ev.Response.Usage.OutputTokens,
				CacheRead: ev.Response.Usage.InputTokensDetails.CachedTokens,
				Total:     ev.Response.Usage.TotalTokens,
			}

		case "response.failed", "error":
			msg := ev.Error.Message
			if msg == "" {
				msg = "response stream failed"
			}
			pe := NewProviderError(req.Model.Provider, req.Model.ID, fmt.Errorf("%s", msg))
			if ev.Error.Code != "" {
				pe = pe.WithCode(ev.Error.Code)
			}
			streamErr = pe
		}
		return nil
	})
	if err != nil {
		asm.end()
		return nil, err
	}
	if streamErr != nil {
		asm.end()
		return nil, streamErr
	}

	for _, call := range pending {
		asm.toolCall(call.callID, call.name, call.args.String(), "")
	}
	return asm.result(stop, usage, responseID), nil
}

func responsesStopReason(status, incompleteReason string) string {
	if status == "incomplete" {
		if incompleteReason == "max_output_tokens" {
			return "length"
		}
		return "incomplete"
	}
	return status
}

func buildResponsesRequest(req *agent.StreamRequest) ([]byte, error) {
	thread := NormalizeThread(req.Messages, req.Model, responsesToolID)

	// With a chained response id the server already holds the prior turns;
	// only the items produced since the last assistant message are sent.
	if req.PreviousResponseID != "" {
		for i := len(thread) - 1; i >= 0; i-- {
			if _, ok := thread[i].(*models.AssistantMessage); ok {
				thread = thread[i+1:]
				break
			}
		}
	}

	var input []json.RawMessage
	appendItem := func(v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		input = append(input, raw)
		return nil
	}

	for _, m := range thread {
		switch msg := m.(type) {
		case *models.UserMessage:
			var content []map[string]any
			for _, b := range msg.Content {
				switch block := b.(type) {
				case *models.TextBlock:
					if block.Text != "" {
						content = append(content, map[string]any{"type": "input_text", "text": block.Text})
					}
				case *models.ImageBlock:
					content = append(content, map[string]any{
						"type":      "input_image",
						"image_url": "data:" + block.MimeType + ";base64," + block.Data,
					})
				}
			}
			if len(content) == 0 {
				continue
			}
			if err := appendItem(map[string]any{"role": "user", "content": content}); err != nil {
				return nil, err
			}

		case *models.AssistantMessage:
			if text := models.MessageText(msg); text != "" {
				item := map[string]any{
					"type": "message",
					"role": "assistant",
					"content": []map[string]any{
						{"type": "output_text", "text": text},
					},
				}
				if err := appendItem(item); err != nil {
					return nil, err
				}
			}
			for _, call := range msg.ToolCalls {
				item := map[string]any{
					"type":      "function_call",
					"call_id":   call.ID,
					"name":      call.Name,
					"arguments": call.Arguments,
				}
				if err := appendItem(item); err != nil {
					return nil, err
				}
			}

		case *models.ToolResultMessage:
			item := map[string]any{
				"type":    "function_call_output",
				"call_id": msg.CallID,
				"output":  models.MessageText(msg),
			}
			if err := appendItem(item); err != nil {
				return nil, err
			}

		case *models.CompactionSummaryMessage:
			item := map[string]any{
				"role": "user",
				"content": []map[string]any{
					{"type": "input_text", "text": compactionSummaryAsText(msg)},
				},
			}
			if err := appendItem(item); err != nil {
				return nil, err
			}
		}
	}

	out := responsesRequest{
		Model:              req.Model.ID,
		Input:              input,
		Instructions:       req.System,
		MaxOutputTokens:    req.MaxTokens,
		PreviousResponseID: req.PreviousResponseID,
		Stream:             true,
		Store:              true,
	}
	for _, spec := range req.Tools {
		out.Tools = append(out.Tools, responsesTool{
			Type:        "function",
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
			Strict:      spec.Strict,
		})
	}
	return json.Marshal(out)
}

// readHTTPError drains a non-200 response into a classified ProviderError.
func readHTTPError(model models.Model, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	pe := &ProviderError{
		Provider: model.Provider,
		Model:    model.ID,
		Reason:   FailoverUnknown,
	}
	pe = pe.WithStatus(resp.StatusCode)

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		pe = pe.WithMessage(payload.Error.Message)
		if payload.Error.Code != "" {
			pe = pe.WithCode(payload.Error.Code)
		} else if payload.Error.Type != "" {
			pe = pe.WithCode(payload.Error.Type)
		}
	} else if len(body) > 0 {
		pe = pe.WithMessage(strings.TrimSpace(string(body)))
	}
	return pe
}

package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/agentif/agentif/internal/agent"
	"github.com/agentif/agentif/pkg/models"
)

// googleAdapter speaks the public Generative Language API through the genai
// SDK.
type googleAdapter struct {
	httpClient *http.Client
}

func (a *googleAdapter) stream(ctx context.Context, req *agent.StreamRequest) (*agent.StreamResult, error) {
	cfg := &genai.ClientConfig{
		APIKey:     req.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: clientWithHeaders(a.httpClient, req.Model.Headers),
	}
	if req.Model.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = req.Model.BaseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
	}

	includeIDs := googleIncludesToolIDs(req.Model.ID)
	thread := NormalizeThread(req.Messages, req.Model, googleToolID)
	contents, err := buildGoogleContents(thread, includeIDs)
	if err != nil {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
	}
	genCfg := buildGoogleConfig(req)

	asm := newAssembler(req)
	var usage models.Usage
	var finish string

	for resp, err := range client.Models.GenerateContentStream(ctx, req.Model.ID, contents, genCfg) {
		if err != nil {
			asm.end()
			return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
		}
		if abortErr := asm.checkAbort(); abortErr != nil {
			return nil, abortErr
		}
		if resp.UsageMetadata != nil {
			usage = googleUsage(resp.UsageMetadata)
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		candidate := resp.Candidates[0]
		if candidate.FinishReason != "" {
			finish = string(candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			consumeGooglePart(asm, part)
		}
	}

	return asm.result(googleStopReason(finish), usage, ""), nil
}

// consumeGooglePart folds one response part into the assembled message.
func consumeGooglePart(asm *messageAssembler, part *genai.Part) {
	signature := ""
	if len(part.ThoughtSignature) > 0 {
		signature = base64.StdEncoding.EncodeToString(part.ThoughtSignature)
	}
	switch {
	case part.FunctionCall != nil:
		args := "{}"
		if len(part.FunctionCall.Args) > 0 {
			if raw, err := json.Marshal(part.FunctionCall.Args); err == nil {
				args = string(raw)
			}
		}
		asm.toolCall(part.FunctionCall.ID, part.FunctionCall.Name, args, signature)
	case part.Thought:
		asm.thinking(part.Text, signature)
	case part.Text != "":
		asm.text(part.Text)
	}
}

// googleIncludesToolIDs reports whether function call ids ride along on the
// wire. Google's own models reject them; OpenAI- and Anthropic-lineage
// models served through the API require them.
func googleIncludesToolIDs(modelID string) bool {
	return strings.HasPrefix(modelID, "claude-") || strings.HasPrefix(modelID, "gpt-oss-")
}

func googleStopReason(finish string) string {
	switch strings.ToUpper(finish) {
	case "", "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return "safety"
	case "MALFORMED_FUNCTION_CALL":
		return "error"
	default:
		return "other"
	}
}

func buildGoogleConfig(req *agent.StreamRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if tools := buildGoogleTools(req.Tools); tools != nil {
		cfg.Tools = tools
	}
	return cfg
}

func buildGoogleTools(specs []agent.ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 spec.Name,
			Description:          spec.Description,
			ParametersJsonSchema: spec.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func buildGoogleContents(thread models.MessageList, includeIDs bool) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, m := range thread {
		switch msg := m.(type) {
		case *models.UserMessage:
			parts := googleUserParts(msg.Content)
			if len(parts) == 0 {
				continue
			}
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: parts})

		case *models.AssistantMessage:
			var parts []*genai.Part
			for _, b := range msg.Content {
				switch block := b.(type) {
				case *models.TextBlock:
					if block.Text != "" {
						parts = append(parts, &genai.Part{Text: block.Text})
					}
				case *models.ThinkingBlock:
					part := &genai.Part{Text: block.Thinking, Thought: true}
					if sig := decodeThoughtSignature(block.Signature); sig != nil {
						part.ThoughtSignature = sig
					}
					parts = append(parts, part)
				case *models.ToolCallBlock:
					var args map[string]any
					if err := json.Unmarshal([]byte(block.Arguments), &args); err != nil {
						args = map[string]any{}
					}
					call := &genai.FunctionCall{Name: block.Name, Args: args}
					if includeIDs {
						call.ID = block.ID
					}
					part := &genai.Part{FunctionCall: call}
					if sig := decodeThoughtSignature(block.Signature); sig != nil {
						part.ThoughtSignature = sig
					}
					parts = append(parts, part)
				}
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: parts})

		case *models.ToolResultMessage:
			response := map[string]any{"output": models.MessageText(msg)}
			if msg.IsError {
				response = map[string]any{"error": models.MessageText(msg)}
			}
			fr := &genai.FunctionResponse{Name: msg.ToolName, Response: response}
			if includeIDs {
				fr.ID = msg.CallID
			}
			out = append(out, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: fr}},
			})

		case *models.CompactionSummaryMessage:
			out = append(out, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: compactionSummaryAsText(msg)}},
			})
		}
	}
	return out, nil
}

func googleUserParts(blocks models.BlockList) []*genai.Part {
	var parts []*genai.Part
	for _, b := range blocks {
		switch block := b.(type) {
		case *models.TextBlock:
			if block.Text != "" {
				parts = append(parts, &genai.Part{Text: block.Text})
			}
		case *models.ImageBlock:
			data, err := base64.StdEncoding.DecodeString(block.Data)
			if err != nil {
				continue
			}
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: block.MimeType, Data: data},
			})
		}
	}
	return parts
}

// decodeThoughtSignature returns the raw signature bytes, or nil when the
// stored signature is not the well-formed base64 the API accepts back.
func decodeThoughtSignature(sig string) []byte {
	if !validThoughtSignature(sig) {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return nil
	}
	return raw
}

func googleUsage(um *genai.GenerateContentResponseUsageMetadata) models.Usage {
	usage := models.Usage{
		Input:     int(um.PromptTokenCount) - int(um.CachedContentTokenCount),
		Output:    int(um.CandidatesTokenCount) + int(um.ThoughtsTokenCount),
		CacheRead: int(um.CachedContentTokenCount),
		Total:     int(um.TotalTokenCount),
	}
	return usage
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/genai"

	"github.com/agentif/agentif/internal/agent"
	"github.com/agentif/agentif/pkg/models"
)

const (
	geminiCLIEndpoint = "https://cloudcode-pa.googleapis.com/v1internal:streamGenerateContent?alt=sse"
	googleTokenURL    = "https://oauth2.googleapis.com/token"

	// geminiSignatureFallback stands in for a thought signature the thread
	// no longer carries; gemini-3 rejects unsigned function calls outright.
	geminiSignatureFallback = "context_engineering_is_the_way_to_go"
)

// geminiCLIAdapter speaks the OAuth-authenticated Gemini CLI internal
// endpoint over raw SSE. The API key slot carries the CLI credential JSON.
type geminiCLIAdapter struct {
	httpClient *http.Client
}

// geminiCLICredential is the persisted Gemini CLI OAuth credential.
type geminiCLICredential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	ProjectID    string    `json:"project_id"`
}

type geminiCLIRequest struct {
	Model   string              `json:"model"`
	Project string              `json:"project"`
	Request geminiCLIInnerParam `json:"request"`
}

type geminiCLIInnerParam struct {
	Contents          []*genai.Content `json:"contents"`
	SystemInstruction *genai.Content   `json:"systemInstruction,omitempty"`
	Tools             []*genai.Tool    `json:"tools,omitempty"`
	GenerationConfig  map[string]any   `json:"generationConfig,omitempty"`
}

type geminiCLIChunk struct {
	Response *genai.GenerateContentResponse `json:"response"`
}

func (a *geminiCLIAdapter) stream(ctx context.Context, req *agent.StreamRequest) (*agent.StreamResult, error) {
	cred, err := parseGeminiCLICredential(req.APIKey)
	if err != nil {
		return nil, err
	}

	body, err := buildGeminiCLIRequest(req, cred.ProjectID)
	if err != nil {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
	}

	url := geminiCLIEndpoint
	if req.Model.BaseURL != "" {
		url = strings.TrimSuffix(req.Model.BaseURL, "/") + "/v1internal:streamGenerateContent?alt=sse"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range req.Model.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.authClient(ctx, cred).Do(httpReq)
	if err != nil {
		return nil, NewProviderError(req.Model.Provider, req.Model.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readHTTPError(req.Model, resp)
	}

	asm := newAssembler(req)
	var usage models.Usage
	var finish string

	err = scanSSE(resp.Body, func(_, data string) error {
		if err := asm.checkAbort(); err != nil {
			return err
		}
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk geminiCLIChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil || chunk.Response == nil {
			return nil
		}
		if chunk.Response.UsageMetadata != nil {
			usage = googleUsage(chunk.Response.UsageMetadata)
		}
		if len(chunk.Response.Candidates) == 0 {
			return nil
		}
		candidate := chunk.Response.Candidates[0]
		if candidate.FinishReason != "" {
			finish = string(candidate.FinishReason)
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				consumeGooglePart(asm, part)
			}
		}
		return nil
	})
	if err != nil {
		asm.end()
		return nil, err
	}

	return asm.result(googleStopReason(finish), usage, ""), nil
}

// authClient wraps the base transport with the OAuth token source, refreshing
// through the credential's refresh token when the access token has expired.
func (a *geminiCLIAdapter) authClient(ctx context.Context, cred *geminiCLICredential) *http.Client {
	cfg := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: googleTokenURL},
	}
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	return oauth2.NewClient(ctx, cfg.TokenSource(ctx, token))
}

func parseGeminiCLICredential(raw string) (*geminiCLICredential, error) {
	var cred geminiCLICredential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, agent.Fatal(&MissingAPIKeyError{Provider: "google-gemini-cli"})
	}
	if cred.ProjectID == "" {
		return nil, agent.Fatal(&MissingProjectError{})
	}
	return &cred, nil
}

func buildGeminiCLIRequest(req *agent.StreamRequest, projectID string) ([]byte, error) {
	includeIDs := googleIncludesToolIDs(req.Model.ID)
	thread := NormalizeThread(req.Messages, req.Model, googleToolID)
	contents, err := buildGoogleContents(thread, includeIDs)
	if err != nil {
		return nil, err
	}

	gemini3 := strings.HasPrefix(req.Model.ID, "gemini-3")
	if gemini3 {
		applySignatureFallback(contents)
	}

	inner := geminiCLIInnerParam{Contents: contents}
	if req.System != "" {
		inner.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	inner.Tools = buildGoogleTools(req.Tools)

	genCfg := map[string]any{}
	if req.MaxTokens > 0 {
		genCfg["maxOutputTokens"] = req.MaxTokens
	}
	if gemini3 {
		// The internal endpoint defaults gemini-3 to multimodal output.
		genCfg["responseModalities"] = []string{"TEXT"}
	}
	if len(genCfg) > 0 {
		inner.GenerationConfig = genCfg
	}

	return json.Marshal(geminiCLIRequest{
		Model:   req.Model.ID,
		Project: projectID,
		Request: inner,
	})
}

// applySignatureFallback stamps the placeholder signature onto unsigned
// model-role function calls so replayed threads from other models survive
// gemini-3's signature check.
func applySignatureFallback(contents []*genai.Content) {
	for _, content := range contents {
		if content.Role != genai.RoleModel {
			continue
		}
		for _, part := range content.Parts {
			if part.FunctionCall != nil && len(part.ThoughtSignature) == 0 {
				part.ThoughtSignature = []byte(geminiSignatureFallback)
			}
		}
	}
}

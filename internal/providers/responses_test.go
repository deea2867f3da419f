package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentif/agentif/internal/agent"
	"github.com/agentif/agentif/pkg/models"
)

func responsesModel(baseURL string) models.Model {
	return models.Model{
		ID:       "gpt-5",
		Provider: "openai",
		API:      models.APIOpenAIResponses,
		BaseURL:  baseURL,
	}
}

func sseBody(events ...string) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteString("data: " + ev + "\n\n")
	}
	return b.String()
}

func TestResponsesStreamEndToEnd(t *testing.T) {
	var gotBody []byte
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseBody(
			`{"type":"response.created","response":{"id":"resp_1"}}`,
			`{"type":"response.output_text.delta","delta":"Hel"}`,
			`{"type":"response.output_text.delta","delta":"lo"}`,
			`{"type":"response.output_item.added","item":{"type":"function_call","id":"item_1","call_id":"call_1","name":"lookup"}}`,
			`{"type":"response.function_call_arguments.delta","item_id":"item_1","delta":"{\"q\":1}"}`,
			`{"type":"response.output_item.done","item":{"type":"function_call","id":"item_1","call_id":"call_1","name":"lookup","arguments":"{\"q\":1}"}}`,
			`{"type":"response.completed","response":{"id":"resp_1","status":"completed","usage":{"input_tokens":100,"output_tokens":20,"total_tokens":120,"input_tokens_details":{"cached_tokens":10}}}}`,
		))
	}))
	defer srv.Close()

	sink := &agent.CollectorSink{}
	req := &agent.StreamRequest{
		Model:    responsesModel(srv.URL),
		APIKey:   "sk-test",
		System:   "be brief",
		Messages: models.MessageList{models.NewUserMessage("hi")},
		Emitter:  agent.NewEmitter(sink, "eval-1"),
	}

	a := &responsesAdapter{httpClient: srv.Client()}
	res, err := a.stream(context.Background(), req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	if got := models.MessageText(res.Message); got != "Hello" {
		t.Errorf("text = %q, want Hello", got)
	}
	if len(res.Message.ToolCalls) != 1 || res.Message.ToolCalls[0].ID != "call_1" {
		t.Fatalf("tool calls = %+v", res.Message.ToolCalls)
	}
	if res.Message.ToolCalls[0].Arguments != `{"q":1}` {
		t.Errorf("arguments = %q", res.Message.ToolCalls[0].Arguments)
	}
	if res.StopReason != models.StopReasonToolCalls {
		t.Errorf("StopReason = %q, want tool_calls", res.StopReason)
	}
	if res.ResponseID != "resp_1" {
		t.Errorf("ResponseID = %q", res.ResponseID)
	}
	want := models.Usage{Input: 90, Output: 20, CacheRead: 10, Total: 120}
	if res.Usage != want {
		t.Errorf("usage = %+v, want %+v", res.Usage, want)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	var wire responsesRequest
	if err := json.Unmarshal(gotBody, &wire); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if wire.Model != "gpt-5" || !wire.Stream || !wire.Store {
		t.Errorf("request = %+v", wire)
	}
	if wire.Instructions != "be brief" {
		t.Errorf("Instructions = %q", wire.Instructions)
	}
	if wire.PreviousResponseID != "" {
		t.Errorf("PreviousResponseID = %q, want empty on first call", wire.PreviousResponseID)
	}

	if got := sink.Deltas(models.UpdateText); got != "Hello" {
		t.Errorf("streamed text deltas = %q", got)
	}
	if got := sink.Deltas(models.UpdateToolArguments); got != `{"q":1}` {
		t.Errorf("streamed argument deltas = %q", got)
	}
}

func TestResponsesReasoningAndRefusalDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseBody(
			`{"type":"response.reasoning_text.delta","delta":"thinking"}`,
			`{"type":"response.refusal.delta","delta":"no"}`,
			`{"type":"response.completed","response":{"id":"resp_2","status":"completed"}}`,
		))
	}))
	defer srv.Close()

	sink := &agent.CollectorSink{}
	req := &agent.StreamRequest{
		Model:    responsesModel(srv.URL),
		APIKey:   "sk-test",
		Messages: models.MessageList{models.NewUserMessage("hi")},
		Emitter:  agent.NewEmitter(sink, "eval-1"),
	}
	a := &responsesAdapter{httpClient: srv.Client()}
	res, err := a.stream(context.Background(), req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got := models.MessageThinking(res.Message); got != "thinking" {
		t.Errorf("thinking = %q", got)
	}
	if got := sink.Deltas(models.UpdateRefusal); got != "no" {
		t.Errorf("refusal deltas = %q", got)
	}
}

func TestResponsesErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseBody(
			`{"type":"response.failed","error":{"code":"server_error","message":"boom"}}`,
		))
	}))
	defer srv.Close()

	req := &agent.StreamRequest{
		Model:    responsesModel(srv.URL),
		APIKey:   "sk-test",
		Messages: models.MessageList{models.NewUserMessage("hi")},
		Emitter:  agent.NewEmitter(nil, "eval-1"),
	}
	a := &responsesAdapter{httpClient: srv.Client()}
	_, err := a.stream(context.Background(), req)
	if err == nil {
		t.Fatal("expected error from failed response")
	}
	if !IsRetryable(err) {
		t.Errorf("server_error should be retryable, got %v", err)
	}
}

func TestResponsesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"code":"rate_limit_exceeded","message":"slow down"}}`)
	}))
	defer srv.Close()

	req := &agent.StreamRequest{
		Model:    responsesModel(srv.URL),
		APIKey:   "sk-test",
		Messages: models.MessageList{models.NewUserMessage("hi")},
		Emitter:  agent.NewEmitter(nil, "eval-1"),
	}
	a := &responsesAdapter{httpClient: srv.Client()}
	_, err := a.stream(context.Background(), req)

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if pe.Status != http.StatusTooManyRequests || pe.Reason != FailoverRateLimit {
		t.Errorf("status=%d reason=%q", pe.Status, pe.Reason)
	}
	if pe.Message != "slow down" {
		t.Errorf("message = %q", pe.Message)
	}
}

func TestResponsesRequestTrimsChainedThread(t *testing.T) {
	model := responsesModel("")
	assistant := models.NewAssistantMessage(model)
	assistant.AppendText("first answer", "")

	req := &agent.StreamRequest{
		Model:  model,
		APIKey: "sk-test",
		Messages: models.MessageList{
			models.NewUserMessage("one"),
			assistant,
			models.NewUserMessage("two"),
		},
		PreviousResponseID: "resp_0",
	}
	body, err := buildResponsesRequest(req)
	if err != nil {
		t.Fatalf("buildResponsesRequest: %v", err)
	}
	var wire responsesRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire.PreviousResponseID != "resp_0" {
		t.Errorf("PreviousResponseID = %q", wire.PreviousResponseID)
	}
	if len(wire.Input) != 1 {
		t.Fatalf("input items = %d, want only the new user turn", len(wire.Input))
	}
	if !strings.Contains(string(wire.Input[0]), `"two"`) {
		t.Errorf("input[0] = %s", wire.Input[0])
	}
}

func TestResponsesStopReason(t *testing.T) {
	if got := responsesStopReason("incomplete", "max_output_tokens"); got != "length" {
		t.Errorf("responsesStopReason incomplete/max = %q", got)
	}
	if got := responsesStopReason("completed", ""); got != "completed" {
		t.Errorf("responsesStopReason completed = %q", got)
	}
}

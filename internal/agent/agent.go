// Package agent implements the evaluation pipeline: a middleware-stacked
// handler chain wrapping a single streaming LLM call, with tool-call
// orchestration, context compaction, input guardrails, session persistence
// and channel streaming layered around it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentif/agentif/internal/sessions"
	"github.com/agentif/agentif/internal/skills"
	"github.com/agentif/agentif/pkg/models"
)

// HTTPOptions tune the streaming dispatcher's HTTP behavior. Options merge
// in order defaults < per-agent < per-call; zero fields inherit.
type HTTPOptions struct {
	// Timeout bounds one HTTP attempt, stream included.
	Timeout time.Duration

	// MaxAttempts caps retries per call. Retry is on by default, POST
	// included.
	MaxAttempts int

	DisableRetry bool

	// DisableStreaming switches adapters that support it to their
	// non-streaming fallback, synthesizing the same event flow from the
	// final response body.
	DisableStreaming bool
}

// MergeHTTPOptions overlays later layers onto earlier ones. Nil layers are
// skipped.
func MergeHTTPOptions(layers ...*HTTPOptions) HTTPOptions {
	var out HTTPOptions
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if layer.Timeout != 0 {
			out.Timeout = layer.Timeout
		}
		if layer.MaxAttempts != 0 {
			out.MaxAttempts = layer.MaxAttempts
		}
		if layer.DisableRetry {
			out.DisableRetry = true
		}
		if layer.DisableStreaming {
			out.DisableStreaming = true
		}
	}
	return out
}

// StreamRequest is one provider call as seen by the streaming layer.
type StreamRequest struct {
	Model    models.Model
	APIKey   string
	System   string
	Messages models.MessageList
	Tools    []ToolSpec

	MaxTokens int
	TurnID    string
	HTTP      HTTPOptions

	// PreviousResponseID chains server-side state on APIs that support it.
	PreviousResponseID string

	// Emitter receives MessageStart/Update/End and ToolCallRequest events
	// as the stream is consumed.
	Emitter *Emitter

	// Abort is polled between stream events. Nil means never aborted.
	Abort *Abort
}

// StreamResult is the reconstructed outcome of one provider call.
type StreamResult struct {
	Message    *models.AssistantMessage
	Usage      models.Usage
	StopReason models.StopReason
	ResponseID string
}

// Streamer consumes one provider stream and reconstructs the assistant
// message. Implemented by the provider dispatcher.
type Streamer interface {
	Stream(ctx context.Context, req *StreamRequest) (*StreamResult, error)
}

// CompactionConfig tunes the context-compaction engine.
type CompactionConfig struct {
	Disabled bool

	// ReserveTokens is subtracted from the model's context window when
	// deciding whether the previous call ran too close to the limit.
	// Defaults to DefaultReserveTokens.
	ReserveTokens int

	// KeepRecentTokens is the estimated token mass of recent messages kept
	// verbatim through a compaction. Defaults to DefaultKeepRecentTokens.
	KeepRecentTokens int
}

// Config assembles an Agent.
type Config struct {
	Name         string
	SystemPrompt string
	Model        models.Model
	APIKey       string

	Streamer  Streamer
	Store     sessions.Store
	Skills    *skills.Registry
	Guardrail *Guardrail

	Compaction CompactionConfig
	HTTP       *HTTPOptions

	// ToolConcurrency bounds parallel tool executions; <= 0 uses
	// DefaultToolConcurrency.
	ToolConcurrency int

	Logger *slog.Logger
}

// Agent owns one conversation pipeline: model, tools, collaborators, and the
// side queues used for steering and queued follow-ups.
type Agent struct {
	Name         string
	SystemPrompt string
	Model        models.Model
	APIKey       string

	Streamer   Streamer
	Store      sessions.Store
	Skills     *skills.Registry
	Guardrail  *Guardrail
	Compaction CompactionConfig
	HTTP       *HTTPOptions

	Tools *Registry

	logger  *slog.Logger
	invoker *Invoker

	queue    InputQueue
	steering InputQueue

	mu              sync.Mutex
	channelSessions map[string]string
}

// New builds an agent from cfg.
func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := NewRegistry()
	return &Agent{
		Name:            cfg.Name,
		SystemPrompt:    cfg.SystemPrompt,
		Model:           cfg.Model,
		APIKey:          cfg.APIKey,
		Streamer:        cfg.Streamer,
		Store:           cfg.Store,
		Skills:          cfg.Skills,
		Guardrail:       cfg.Guardrail,
		Compaction:      cfg.Compaction,
		HTTP:            cfg.HTTP,
		Tools:           registry,
		logger:          logger,
		invoker:         NewInvoker(registry, cfg.ToolConcurrency, logger),
		channelSessions: map[string]string{},
	}
}

// RegisterTool adds a tool to the agent.
func (a *Agent) RegisterTool(t *Tool) error { return a.Tools.Register(t) }

// QueueInput enqueues a follow-up turn input. The queue middleware drains it
// after the current inner handler returns.
func (a *Agent) QueueInput(in Input) { a.queue.Push(in) }

// Steer injects user input mid-evaluation. The steer middleware drains it
// before the next LLM call, between tool cycles.
func (a *Agent) Steer(in Input) { a.steering.Push(in) }

// Logger returns the agent's logger.
func (a *Agent) Logger() *slog.Logger { return a.logger }

// sessionFor maps a channel id to a stable session id, minting one on first
// use. Distinct channels get distinct sessions; re-evaluating on the same
// channel resumes its session.
func (a *Agent) sessionFor(channelID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.channelSessions[channelID]; ok {
		return id
	}
	id := uuid.NewString()
	a.channelSessions[channelID] = id
	return id
}

// streamHandler is the chain leaf: it commits the turn input to the state
// and runs one provider call through the streamer.
func (a *Agent) streamHandler(ctx context.Context, tc *TurnContext) (*models.AgentState, error) {
	if err := tc.Abort.Check(); err != nil {
		return tc.State, err
	}
	if tc.Agent.Streamer == nil {
		return tc.State, Fatal(fmt.Errorf("agent %q has no streamer configured", tc.Agent.Name))
	}

	state := tc.State
	state.Append(tc.Input.ToMessages()...)

	req := &StreamRequest{
		Model:     tc.Agent.Model,
		APIKey:    tc.Agent.APIKey,
		System:    tc.Agent.SystemPrompt,
		Messages:  state.Messages,
		Tools:     tc.Agent.Tools.Specs(),
		MaxTokens: tc.Agent.Model.MaxTokens,
		TurnID:    tc.TurnID,
		HTTP:      MergeHTTPOptions(tc.Agent.HTTP),

		PreviousResponseID: state.LastResponseID,

		Emitter: tc.Emitter,
		Abort:   tc.Abort,
	}

	res, err := tc.Agent.Streamer.Stream(ctx, req)
	if err != nil {
		return state, err
	}

	state.Append(res.Message)
	state.PendingToolCalls = append([]models.ToolCall(nil), res.Message.ToolCalls...)
	state.StopReason = res.StopReason
	state.AddUsage(res.Usage)
	state.LastCallInputTokens = res.Usage.Input + res.Usage.CacheRead + res.Usage.CacheWrite
	if res.ResponseID != "" {
		state.LastResponseID = res.ResponseID
	}
	return state, nil
}

// FatalError marks structural failures (unknown api, missing credentials)
// that must surface to the caller instead of ending just the current turn.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as fatal. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err is structural.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

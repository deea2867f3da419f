package agent

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/agentif/agentif/internal/channels"
	"github.com/agentif/agentif/pkg/models"
)

// EvalOptions adjust one Evaluate call.
type EvalOptions struct {
	Sink      Sink
	State     *models.AgentState
	Abort     *Abort
	SessionID string
	Channel   channels.Channel
}

// EvalOption mutates EvalOptions.
type EvalOption func(*EvalOptions)

// WithSink routes progress events to sink.
func WithSink(sink Sink) EvalOption { return func(o *EvalOptions) { o.Sink = sink } }

// WithState evaluates on top of an existing state instead of a fresh one.
func WithState(state *models.AgentState) EvalOption {
	return func(o *EvalOptions) { o.State = state }
}

// WithAbort supplies a caller-owned abort flag.
func WithAbort(abort *Abort) EvalOption { return func(o *EvalOptions) { o.Abort = abort } }

// WithSessionID pins the session id instead of deriving one.
func WithSessionID(id string) EvalOption { return func(o *EvalOptions) { o.SessionID = id } }

// WithEvalChannel binds the frontend channel for this evaluation.
func WithEvalChannel(ch channels.Channel) EvalOption {
	return func(o *EvalOptions) { o.Channel = ch }
}

// Evaluate runs one top-level evaluation: the full middleware stack around
// as many turns as the tool-call loop needs. It returns the final state; on
// abort, the last known state with a nil error.
func (a *Agent) Evaluate(ctx context.Context, input Input, opts ...EvalOption) (*models.AgentState, error) {
	var o EvalOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.Channel != nil {
		ctx = WithChannel(ctx, o.Channel)
	}
	if ch := ChannelFromContext(ctx); ch != nil {
		// The channel is released on every exit path, exactly once.
		defer func() {
			if err := ch.CloseChannel(ctx); err != nil {
				a.logger.Warn("channel close failed", "channel_id", ch.ChannelID(), "error", err)
			}
		}()
	}
	evaluationID := uuid.NewString()
	ctx = WithEvaluationID(ctx, evaluationID)

	state := o.State
	if state == nil {
		state = models.NewAgentState()
	}
	if o.SessionID != "" {
		state.SessionID = o.SessionID
	}
	abort := o.Abort
	if abort == nil {
		abort = NewAbort()
	}

	tc := &TurnContext{
		Agent:   a,
		State:   state,
		Input:   input,
		Emitter: NewEmitter(o.Sink, evaluationID),
		Abort:   abort,
	}

	// The chain is assembled per evaluation so middlewares may carry
	// per-evaluation state in their closures.
	handler := Chain(
		a.queueMiddleware(),
		a.evaluateMiddleware(evaluationID),
		a.skillsMiddleware(),
		a.guardrailMiddleware(),
		a.sessionMiddleware(),
		a.toolLoopMiddleware(),
		a.channelMiddleware(),
		a.steerMiddleware(),
		a.compactionMiddleware(),
	)(a.streamHandler)

	return handler(ctx, tc)
}

// evaluateMiddleware brackets the evaluation with EvaluateStart/End events
// and swallows AbortEvaluation, returning the last known state.
func (a *Agent) evaluateMiddleware(evaluationID string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, tc *TurnContext) (*models.AgentState, error) {
			tc.Emitter.EvaluateStart()
			a.logger.Debug("evaluation started", "evaluation_id", evaluationID, "agent", a.Name)

			state, err := next(ctx, tc)
			if state == nil {
				state = tc.State
			}
			tc.Emitter.EvaluateEnd(state)

			if errors.Is(err, ErrAbortEvaluation) {
				a.logger.Info("evaluation aborted", "evaluation_id", evaluationID)
				return state, nil
			}
			if err != nil {
				a.logger.Warn("evaluation failed", "evaluation_id", evaluationID, "error", err)
			}
			return state, err
		}
	}
}

// skillsMiddleware appends the available-skills XML to the system prompt for
// the inner call only; the agent itself is never mutated.
func (a *Agent) skillsMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, tc *TurnContext) (*models.AgentState, error) {
			if a.Skills == nil || a.Skills.Len() == 0 {
				return next(ctx, tc)
			}
			xml := a.Skills.RenderXML()
			if xml == "" {
				return next(ctx, tc)
			}

			derived := *tc.Agent
			if derived.SystemPrompt != "" {
				derived.SystemPrompt += "\n\n"
			}
			derived.SystemPrompt += xml

			tc2 := tc.clone()
			tc2.Agent = &derived
			return next(ctx, tc2)
		}
	}
}

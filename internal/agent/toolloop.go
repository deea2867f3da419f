package agent

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/agentif/agentif/pkg/models"
)

// toolLoopMiddleware drives the agentic loop: run the inner handler, fan out
// any pending tool calls concurrently, await results in call order, and
// re-enter with the results until the model stops calling tools.
func (a *Agent) toolLoopMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, tc *TurnContext) (*models.AgentState, error) {
			state := tc.State
			input := tc.Input

			for {
				// An empty input issues no turn.
				if input.IsEmpty() {
					return state, nil
				}
				if err := tc.Abort.Check(); err != nil {
					return state, err
				}

				turnID := uuid.NewString()
				tc.Emitter.TurnStart(turnID)

				turnCtx := tc.clone()
				turnCtx.State = state
				turnCtx.Input = input
				turnCtx.TurnID = turnID

				newState, err := next(ctx, turnCtx)
				if newState != nil {
					state = newState
				}
				if err != nil {
					if errors.Is(err, ErrAbortEvaluation) || IsFatal(err) || IsInvalidInput(err) {
						tc.Emitter.TurnEnd(turnID, state.LastAssistantMessage(), err)
						return state, err
					}
					// A provider stream failure ends the turn, not the
					// evaluation.
					a.logger.Warn("turn failed", "turn_id", turnID, "error", err)
					tc.Emitter.Error(err)
					tc.Emitter.TurnEnd(turnID, state.LastAssistantMessage(), err)
					return state, nil
				}

				if len(state.PendingToolCalls) == 0 {
					tc.Emitter.TurnEnd(turnID, state.LastAssistantMessage(), nil)
					return state, nil
				}

				pending := state.PendingToolCalls
				state.PendingToolCalls = nil

				futures := make([]<-chan *models.ToolResultMessage, len(pending))
				for i, call := range pending {
					futures[i] = a.invoker.Dispatch(ctx, tc.Emitter, call)
				}

				// Await in call order so the next LLM call sees results in
				// the order the calls appeared in the assistant message.
				results := make([]models.Message, 0, len(pending))
				aborted := false
				for _, future := range futures {
					if err := tc.Abort.Check(); err != nil {
						// In-flight futures are abandoned, not awaited.
						aborted = true
						break
					}
					results = append(results, <-future)
				}
				if aborted {
					tc.Emitter.TurnEnd(turnID, state.LastAssistantMessage(), ErrAbortEvaluation)
					return state, ErrAbortEvaluation
				}

				tc.Emitter.TurnEnd(turnID, state.LastAssistantMessage(), nil)
				input = MessagesInput(results...)
			}
		}
	}
}

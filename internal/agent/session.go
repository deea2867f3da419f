package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentif/agentif/internal/channels"
	"github.com/agentif/agentif/pkg/models"
)

// sessionMiddleware hydrates the state from the session store before the
// inner handler and writes exactly one journal entry after it: a compaction
// entry when this evaluation rewrote the prefix, a delta of the produced
// messages otherwise.
func (a *Agent) sessionMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, tc *TurnContext) (*models.AgentState, error) {
			if a.Store == nil {
				return next(ctx, tc)
			}

			ch := ChannelFromContext(ctx)
			sessionID := tc.State.SessionID
			if sessionID == "" && ch != nil && ch.ChannelID() != "" {
				sessionID = a.sessionFor(ch.ChannelID())
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			state := tc.State
			if len(state.Messages) == 0 {
				loaded, err := a.Store.LoadSession(ctx, sessionID)
				if err != nil {
					a.logger.Warn("session hydration failed", "session_id", sessionID, "error", err)
				} else {
					loaded.SessionID = sessionID
					state = loaded
				}
			}
			state.SessionID = sessionID
			state.LastCompaction = nil
			baseLen := len(state.Messages)

			tc2 := tc.clone()
			tc2.State = state

			newState, err := next(ctx, tc2)
			if newState != nil {
				state = newState
			}

			a.writeEntry(ctx, sessionID, state, baseLen, ch)
			return state, err
		}
	}
}

func (a *Agent) writeEntry(ctx context.Context, sessionID string, state *models.AgentState, baseLen int, ch channels.Channel) {
	entry := &models.SessionEntry{
		CreatedAt: float64(time.Now().UnixNano()) / float64(time.Second),
	}
	if state.LastCompaction != nil {
		entry.IsCompaction = true
		entry.Messages = append(models.MessageList(nil), state.Messages...)
	} else {
		if baseLen >= len(state.Messages) {
			return
		}
		entry.Messages = append(models.MessageList(nil), state.Messages[baseLen:]...)
	}

	if ch != nil {
		entry.ChannelID = ch.ChannelID()
		entry.ChannelFlags = channels.Flags(ch)
		entry.PostID = ch.SourceMessageID()
		if user := ch.CurrentUser(); user != nil {
			entry.UserID = user.ID
		}
	}

	if err := a.Store.AppendEntry(ctx, sessionID, entry); err != nil {
		a.logger.Warn("session append failed", "session_id", sessionID, "error", err)
		return
	}
	state.LastCompaction = nil
}

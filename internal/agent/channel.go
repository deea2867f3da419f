package agent

import (
	"context"
	"sync"

	"github.com/agentif/agentif/internal/channels"
	"github.com/agentif/agentif/pkg/models"
)

// channelMiddleware mirrors assistant message events onto the current
// channel: MessageStart arms the stream, text deltas drive it, MessageEnd
// finishes it. The no-reply sentinel on the first text delta suppresses the
// whole message before a byte reaches the channel.
func (a *Agent) channelMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, tc *TurnContext) (*models.AgentState, error) {
			ch := ChannelFromContext(ctx)
			if ch == nil {
				return next(ctx, tc)
			}

			relay := &channelRelay{ctx: ctx, channel: ch, logger: a.logger}
			tc2 := tc.clone()
			tc2.Emitter = tc.Emitter.WithSink(func(inner Sink) Sink {
				return SinkFunc(func(ev models.AgentEvent) {
					relay.observe(ev)
					inner.OnEvent(ev)
				})
			})
			return next(ctx, tc2)
		}
	}
}

// channelRelay is the per-turn streaming state machine. The sentinel
// decision is deferred until the first text delta of each assistant
// message.
type channelRelay struct {
	ctx     context.Context
	channel channels.Channel
	logger  interface {
		Warn(msg string, args ...any)
	}

	mu         sync.Mutex
	started    bool
	suppressed bool
	decided    bool
}

func (r *channelRelay) observe(ev models.AgentEvent) {
	if ev.Role != models.RoleAssistant {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case models.EventMessageStart:
		r.started, r.suppressed, r.decided = false, false, false

	case models.EventMessageUpdate:
		if ev.Kind != models.UpdateText || ev.Delta == "" {
			return
		}
		if !r.decided {
			r.decided = true
			if channels.HasNoReplySentinel(ev.Delta) {
				r.suppressed = true
				return
			}
			if err := r.channel.StartStreaming(r.ctx); err != nil {
				r.logger.Warn("channel start failed", "error", err)
				r.suppressed = true
				return
			}
			r.started = true
		}
		if r.suppressed || !r.started {
			return
		}
		if err := r.channel.AppendToStream(r.ctx, ev.Delta); err != nil {
			r.logger.Warn("channel append failed", "error", err)
		}

	case models.EventMessageEnd:
		if r.started {
			if err := r.channel.FinishStreaming(r.ctx); err != nil {
				r.logger.Warn("channel finish failed", "error", err)
			}
		}
		r.started, r.suppressed, r.decided = false, false, false
	}
}

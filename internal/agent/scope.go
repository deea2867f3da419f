package agent

import (
	"context"

	"github.com/agentif/agentif/internal/channels"
)

type evaluationIDKey struct{}
type channelKey struct{}

// WithEvaluationID binds the current evaluation id into the context. The
// evaluate middleware opens a fresh binding per evaluation.
func WithEvaluationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, evaluationIDKey{}, id)
}

// EvaluationIDFromContext returns the current evaluation id, if bound.
func EvaluationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(evaluationIDKey{}).(string)
	return id, ok
}

// WithChannel binds the current channel into the context. The channel
// middleware streams assistant output to it and the session middleware reads
// its metadata for journal entries.
func WithChannel(ctx context.Context, ch channels.Channel) context.Context {
	return context.WithValue(ctx, channelKey{}, ch)
}

// ChannelFromContext returns the current channel, or nil.
func ChannelFromContext(ctx context.Context) channels.Channel {
	ch, _ := ctx.Value(channelKey{}).(channels.Channel)
	return ch
}

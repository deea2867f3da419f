// Package channels defines the frontend sink that receives streamed
// assistant output, plus metadata about the originating conversation.
package channels

import (
	"context"
	"strings"

	"github.com/agentif/agentif/pkg/models"
)

// NoReplySentinel suppresses an assistant message before any byte reaches
// the channel: when the first text delta begins with this character the
// message is never streamed.
const NoReplySentinel = "∅"

// HasNoReplySentinel reports whether a first text delta suppresses the
// message.
func HasNoReplySentinel(delta string) bool {
	return strings.HasPrefix(delta, NoReplySentinel)
}

// User identifies the human on the other end of a channel.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Channel is a frontend for one conversation. Implementations receive
// streamed assistant text plus whole messages, and expose the metadata the
// session middleware records on journal entries.
//
// CloseChannel is invoked on every exit path, including errors, exactly once
// per evaluation.
type Channel interface {
	// StartStreaming opens an in-progress assistant message on the frontend.
	StartStreaming(ctx context.Context) error

	// AppendToStream adds a text delta to the open message.
	AppendToStream(ctx context.Context, delta string) error

	// FinishStreaming finalizes the open message.
	FinishStreaming(ctx context.Context) error

	// SendMessage delivers a complete message outside the streaming flow.
	SendMessage(ctx context.Context, msg models.Message) error

	// CloseChannel releases the channel.
	CloseChannel(ctx context.Context) error

	// ChannelID identifies the conversation on the frontend.
	ChannelID() string

	// IsGroup reports whether the conversation is a group.
	IsGroup() bool

	// IsPrivate reports whether the conversation is private (a DM).
	IsPrivate() bool

	// CurrentUser returns the originating user, if known.
	CurrentUser() *User

	// SourceMessageID returns the frontend id of the message that started
	// this evaluation, if any.
	SourceMessageID() string
}

// Flags packs the channel's metadata bits for session entries.
func Flags(ch Channel) int {
	if ch == nil {
		return 0
	}
	flags := 0
	if ch.IsPrivate() {
		flags |= models.ChannelFlagPrivate
	}
	if ch.IsGroup() {
		flags |= models.ChannelFlagGroup
	}
	return flags
}

// NopChannel discards everything. Embed it to implement only the operations
// a concrete channel cares about.
type NopChannel struct{}

func (NopChannel) StartStreaming(context.Context) error                { return nil }
func (NopChannel) AppendToStream(context.Context, string) error        { return nil }
func (NopChannel) FinishStreaming(context.Context) error               { return nil }
func (NopChannel) SendMessage(context.Context, models.Message) error   { return nil }
func (NopChannel) CloseChannel(context.Context) error                  { return nil }
func (NopChannel) ChannelID() string                                   { return "" }
func (NopChannel) IsGroup() bool                                       { return false }
func (NopChannel) IsPrivate() bool                                     { return false }
func (NopChannel) CurrentUser() *User                                  { return nil }
func (NopChannel) SourceMessageID() string                             { return "" }

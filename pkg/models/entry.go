package models

// Channel flag bits recorded on session entries. An absent flags value means
// legacy / unrestricted.
const (
	ChannelFlagPrivate = 0x01
	ChannelFlagGroup   = 0x02
)

// SessionEntry is one append-only journal record for a session. A normal
// entry is a delta of messages produced by one evaluation; a compaction entry
// carries the full post-compaction state and supersedes everything before it
// on replay.
type SessionEntry struct {
	ID           string      `json:"id,omitempty"`
	CreatedAt    float64     `json:"created_at"`
	Messages     MessageList `json:"messages"`
	IsCompaction bool        `json:"is_compaction,omitempty"`
	UserID       string      `json:"user_id,omitempty"`
	PostID       string      `json:"post_id,omitempty"`
	ChannelID    string      `json:"channel_id,omitempty"`
	ChannelFlags int         `json:"channel_flags,omitempty"`
}

// IsPrivate reports whether the private flag bit is set.
func (e *SessionEntry) IsPrivate() bool { return e.ChannelFlags&ChannelFlagPrivate != 0 }

// IsGroup reports whether the group flag bit is set.
func (e *SessionEntry) IsGroup() bool { return e.ChannelFlags&ChannelFlagGroup != 0 }

// ApplyEntry folds one journal entry into a state: compaction entries
// replace the message history, delta entries append.
func ApplyEntry(state *AgentState, entry *SessionEntry) {
	if entry.IsCompaction {
		state.Messages = append(MessageList(nil), entry.Messages...)
		return
	}
	state.Messages = append(state.Messages, entry.Messages...)
}

// Package sessions persists conversation history as an append-only journal
// of entries keyed by session id. Three backends are provided: in-memory,
// file-per-session JSONL, and SQLite.
package sessions

import (
	"context"

	"github.com/agentif/agentif/pkg/models"
)

// Store is the session journal contract. Implementations serialize writers
// per session id; readers may run concurrently.
type Store interface {
	// LoadSession replays all entries for id into a fresh state. A session
	// with no entries yields an empty state. The returned state is owned by
	// the caller.
	LoadSession(ctx context.Context, id string) (*models.AgentState, error)

	// AppendEntry appends one journal entry. Missing entry id and created_at
	// are filled in by the store.
	AppendEntry(ctx context.Context, id string, entry *models.SessionEntry) error

	// Entries returns entries in append order, starting at offset start,
	// returning at most limit entries (limit <= 0 means no limit).
	Entries(ctx context.Context, id string, start, limit int) ([]*models.SessionEntry, error)

	// EntryCount returns the number of entries recorded for id.
	EntryCount(ctx context.Context, id string) (int, error)

	// DeleteSession removes a session and its entries. Deleting a session
	// that does not exist is not an error.
	DeleteSession(ctx context.Context, id string) error
}

// Searcher is an optional Store capability: full-text-ish lookup of session
// ids whose entries match a query.
type Searcher interface {
	SearchSessions(ctx context.Context, query string, limit int) ([]string, error)
}

// Replay folds entries in order into a fresh state tagged with the session
// id.
func Replay(id string, entries []*models.SessionEntry) *models.AgentState {
	state := models.NewAgentState()
	state.SessionID = id
	for _, entry := range entries {
		models.ApplyEntry(state, entry)
	}
	return state
}

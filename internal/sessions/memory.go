package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentif/agentif/pkg/models"
)

// MemoryStore keeps session journals in process memory. Entries are cloned
// on write and on read so callers never share storage with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*models.SessionEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string][]*models.SessionEntry{}}
}

func (s *MemoryStore) LoadSession(ctx context.Context, id string) (*models.AgentState, error) {
	entries, err := s.Entries(ctx, id, 0, 0)
	if err != nil {
		return nil, err
	}
	return Replay(id, entries), nil
}

func (s *MemoryStore) AppendEntry(_ context.Context, id string, entry *models.SessionEntry) error {
	clone, err := cloneEntry(entry)
	if err != nil {
		return fmt.Errorf("encode session entry: %w", err)
	}
	stampEntry(clone)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = append(s.entries[id], clone)

	entry.ID = clone.ID
	entry.CreatedAt = clone.CreatedAt
	return nil
}

func (s *MemoryStore) Entries(_ context.Context, id string, start, limit int) ([]*models.SessionEntry, error) {
	s.mu.RLock()
	stored := s.entries[id]
	s.mu.RUnlock()

	return slicePage(stored, start, limit, cloneEntryOrPanic), nil
}

func (s *MemoryStore) EntryCount(_ context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[id]), nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// stampEntry fills in id and created_at when the caller left them empty.
func stampEntry(entry *models.SessionEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = float64(time.Now().UnixNano()) / float64(time.Second)
	}
}

func cloneEntry(entry *models.SessionEntry) (*models.SessionEntry, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var out models.SessionEntry
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func cloneEntryOrPanic(entry *models.SessionEntry) *models.SessionEntry {
	clone, err := cloneEntry(entry)
	if err != nil {
		// Entries were validated on the way in, so this cannot fire for
		// stored data.
		panic(err)
	}
	return clone
}

func slicePage(entries []*models.SessionEntry, start, limit int, clone func(*models.SessionEntry) *models.SessionEntry) []*models.SessionEntry {
	if start < 0 {
		start = 0
	}
	if start >= len(entries) {
		return nil
	}
	end := len(entries)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]*models.SessionEntry, 0, end-start)
	for _, e := range entries[start:end] {
		out = append(out, clone(e))
	}
	return out
}

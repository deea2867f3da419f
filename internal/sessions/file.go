package sessions

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentif/agentif/pkg/models"
)

// FileStore persists one JSONL file per session id under a root directory.
// Malformed lines found during reads are logged and skipped, never fatal.
type FileStore struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates root if needed and returns a store over it. A nil
// logger falls back to slog.Default().
func NewFileStore(root string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{root: root, logger: logger, locks: map[string]*sync.Mutex{}}, nil
}

// sessionLock returns the per-session writer lock, creating it on first use.
func (s *FileStore) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func (s *FileStore) path(id string) string {
	// Session ids are caller-chosen; flatten anything path-hostile.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
	return filepath.Join(s.root, safe+".jsonl")
}

func (s *FileStore) LoadSession(ctx context.Context, id string) (*models.AgentState, error) {
	entries, err := s.Entries(ctx, id, 0, 0)
	if err != nil {
		return nil, err
	}
	return Replay(id, entries), nil
}

func (s *FileStore) AppendEntry(_ context.Context, id string, entry *models.SessionEntry) error {
	stampEntry(entry)
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode session entry: %w", err)
	}

	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) // #nosec G304 -- path is sanitized above
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append session entry: %w", err)
	}
	return nil
}

func (s *FileStore) Entries(_ context.Context, id string, start, limit int) ([]*models.SessionEntry, error) {
	f, err := os.Open(s.path(id)) // #nosec G304 -- path is sanitized above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	var entries []*models.SessionEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry models.SessionEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			s.logger.Warn("skipping malformed session entry", "session_id", id, "line", lineNo, "error", err)
			continue
		}
		entries = append(entries, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	return slicePage(entries, start, limit, func(e *models.SessionEntry) *models.SessionEntry { return e }), nil
}

func (s *FileStore) EntryCount(ctx context.Context, id string) (int, error) {
	entries, err := s.Entries(ctx, id, 0, 0)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *FileStore) DeleteSession(_ context.Context, id string) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session file: %w", err)
	}
	return nil
}

package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/agentif/agentif/internal/backoff"
	"github.com/agentif/agentif/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_entries (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	entry_id      TEXT NOT NULL,
	created_at    REAL NOT NULL,
	is_compaction INTEGER NOT NULL DEFAULT 0,
	payload       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_entries_session
	ON session_entries(session_id, seq);
`

// SQLiteStore persists session journals in a single SQLite database.
// Transient SQLITE_BUSY failures are retried with backoff; writers are
// additionally serialized per session id.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	policy backoff.Policy

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// OpenSQLite opens (creating if needed) the database at path and runs the
// schema migration. A nil logger falls back to slog.Default().
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{
		db:     db,
		logger: logger,
		policy: backoff.Policy{InitialMs: 20, MaxMs: 1000, Factor: 2, Jitter: 0.2},
		locks:  map[string]*sync.Mutex{},
	}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// busyRetryable matches the transient lock errors worth retrying.
func busyRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *SQLiteStore) LoadSession(ctx context.Context, id string) (*models.AgentState, error) {
	entries, err := s.Entries(ctx, id, 0, 0)
	if err != nil {
		return nil, err
	}
	return Replay(id, entries), nil
}

func (s *SQLiteStore) AppendEntry(ctx context.Context, id string, entry *models.SessionEntry) error {
	stampEntry(entry)
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode session entry: %w", err)
	}

	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	_, err = backoff.Retry(ctx, s.policy, 5, busyRetryable, func(int) (struct{}, error) {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO session_entries (session_id, entry_id, created_at, is_compaction, payload)
			 VALUES (?, ?, ?, ?, ?)`,
			id, entry.ID, entry.CreatedAt, entry.IsCompaction, string(payload))
		return struct{}{}, execErr
	})
	if err != nil {
		return fmt.Errorf("append session entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Entries(ctx context.Context, id string, start, limit int) ([]*models.SessionEntry, error) {
	if start < 0 {
		start = 0
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM session_entries WHERE session_id = ? ORDER BY seq LIMIT ? OFFSET ?`,
		id, limit, start)
	if err != nil {
		return nil, fmt.Errorf("query session entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.SessionEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan session entry: %w", err)
		}
		var entry models.SessionEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			s.logger.Warn("skipping malformed session entry", "session_id", id, "error", err)
			continue
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session entries: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) EntryCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_entries WHERE session_id = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count session entries: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	_, err := backoff.Retry(ctx, s.policy, 5, busyRetryable, func(int) (struct{}, error) {
		_, execErr := s.db.ExecContext(ctx,
			`DELETE FROM session_entries WHERE session_id = ?`, id)
		return struct{}{}, execErr
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SearchSessions returns distinct session ids whose entries contain query,
// most recent first.
func (s *SQLiteStore) SearchSessions(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM session_entries
		 WHERE payload LIKE ? ESCAPE '\'
		 GROUP BY session_id ORDER BY MAX(seq) DESC LIMIT ?`,
		pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

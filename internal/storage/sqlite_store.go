package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samvad-hq/channel-relay/internal/domain"

	_ "modernc.org/sqlite"
)

// sqliteLedger stores processed keys in a table unique on (message_id, source_channel_id).
type sqliteLedger struct {
	db              *sql.DB
	retention       time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	cleanupMu   sync.Mutex
	lastCleanup time.Time
}

func openSQLite(path string, opts Options) (*sqliteLedger, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &sqliteLedger{
		db:              db,
		retention:       opts.Retention,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ledger migration: %w", err)
	}
	l.lastCleanup = l.now()
	return l, nil
}

func (s *sqliteLedger) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS processed_messages (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id        INTEGER NOT NULL,
		source_channel_id TEXT NOT NULL,
		processed_at      INTEGER NOT NULL,
		UNIQUE (message_id, source_channel_id)
	);
	CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_messages(processed_at);
	`)
	return err
}

func (s *sqliteLedger) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteLedger) HasProcessed(key domain.MessageKey) (bool, error) {
	now := s.now()
	if err := s.maybePrune(now); err != nil {
		return false, err
	}

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM processed_messages
		 WHERE message_id = ? AND source_channel_id = ? AND processed_at > ?`,
		key.MessageID, key.ChannelID, now.Add(-s.retention).Unix(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query processed message: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed inserts key. The unique constraint turns repeats into no-ops
// unless the stored row is already past retention.
func (s *sqliteLedger) MarkProcessed(key domain.MessageKey) error {
	now := s.now()
	if err := s.maybePrune(now); err != nil {
		return err
	}

	_, err := s.db.Exec(
		`INSERT INTO processed_messages (message_id, source_channel_id, processed_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (message_id, source_channel_id)
		 DO UPDATE SET processed_at = excluded.processed_at WHERE processed_at <= ?`,
		key.MessageID, key.ChannelID, now.Unix(), now.Add(-s.retention).Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert processed message: %w", err)
	}
	return nil
}

func (s *sqliteLedger) Prune() error { return s.maybePrune(s.now()) }

func (s *sqliteLedger) maybePrune(now time.Time) error {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()

	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return nil
	}
	if _, err := s.db.Exec(
		`DELETE FROM processed_messages WHERE processed_at <= ?`,
		now.Add(-s.retention).Unix(),
	); err != nil {
		return fmt.Errorf("prune processed messages: %w", err)
	}
	s.lastCleanup = now
	return nil
}

// Package cache implements the content-addressed response cache shared by
// all backend adapters. Entries are keyed by a stable hash over the cache
// format version, the backend identifier, the system text, and the prompt
// text, and are immutable once written. There is no eviction: repeated
// runs over the same corpus must never repeat a remote call.
package cache

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docsieve/docsieve/chat"
	"github.com/docsieve/docsieve/errors"
)

// FormatVersion participates in key derivation. Bumping it invalidates
// every existing entry without touching the store.
const FormatVersion = "prompt-cache-v1"

const schema = `
CREATE TABLE IF NOT EXISTS responses (
	key        TEXT PRIMARY KEY,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Store is a durable key-value response cache backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open opens (or creates) a response cache at the given path. Use
// ":memory:" for an ephemeral store in tests. The connection uses WAL
// mode and a busy timeout so a concurrently running second process
// degrades to duplicate remote calls rather than write failures.
func Open(path string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open response cache")
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create responses table")
	}

	logger.Debugw("Response cache opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key derives the content-addressed cache key. Any change to system or
// prompt text, even whitespace, yields a different key.
func Key(backendID, system, prompt string) string {
	joined := strings.Join([]string{FormatVersion, backendID, system, prompt}, ".")
	sum := md5.Sum([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response for (backendID, system, prompt), with
// ok=false on a miss.
func (s *Store) Get(backendID, system, prompt string) (chat.Message, bool, error) {
	var msg chat.Message
	key := Key(backendID, system, prompt)

	err := s.db.QueryRow(
		"SELECT role, content FROM responses WHERE key = ?", key,
	).Scan(&msg.Role, &msg.Content)
	if err == sql.ErrNoRows {
		return chat.Message{}, false, nil
	}
	if err != nil {
		return chat.Message{}, false, errors.Wrap(err, "cache read failed")
	}

	s.logger.Debugw("Cache hit", "backend", backendID, "key", key)
	return msg, true, nil
}

// Put stores a response under (backendID, system, prompt). Entries are
// immutable: a concurrent writer racing on the same key wins or loses
// whole, never mixes.
func (s *Store) Put(backendID, system, prompt string, msg chat.Message) error {
	key := Key(backendID, system, prompt)
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO responses (key, role, content, created_at) VALUES (?, ?, ?, ?)",
		key, msg.Role, msg.Content, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "cache write failed")
	}
	return nil
}

// Stats returns the number of cached responses.
func (s *Store) Stats() (int64, error) {
	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM responses").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "cache stats failed")
	}
	return n, nil
}

// Clear removes every cached response.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM responses"); err != nil {
		return errors.Wrap(err, "cache clear failed")
	}
	return nil
}

package store

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"artisora/pkg/errors"
)

// snapshotKey is the single fixed key the whole conversation list lives under.
const snapshotKey = "artisan_conversations"

// Storage persists the conversation snapshot as one opaque record.
type Storage interface {
	// Load returns the stored snapshot, or nil when none exists.
	Load() ([]byte, error)
	Save(raw []byte) error
}

// SQLiteStorage is the durable local cache: one key/value table, the snapshot
// overwritten wholesale on every save.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Internal("Failed to open conversation cache", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS app_state (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, errors.Internal("Failed to initialize conversation cache", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Load() ([]byte, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT value FROM app_state WHERE key = ?`, snapshotKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal("Failed to load conversation cache", err)
	}
	return raw, nil
}

func (s *SQLiteStorage) Save(raw []byte) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO app_state (key, value) VALUES (?, ?)`,
		snapshotKey, raw,
	)
	if err != nil {
		return errors.Internal("Failed to save conversation cache", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// MemoryStorage keeps the snapshot in memory, for tests and ephemeral
// sessions.
type MemoryStorage struct {
	mu  sync.Mutex
	raw []byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw, nil
}

func (s *MemoryStorage) Save(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = append([]byte(nil), raw...)
	return nil
}

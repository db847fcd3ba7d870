package clickserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store keeps one counter per client.
type Store interface {
	Get(ctx context.Context, client string) (int, error)
	Increment(ctx context.Context, client string) (int, error)
	Delete(ctx context.Context, client string) error
}

// MemoryStore keeps counters in a map; they are lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	clicks map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clicks: make(map[string]int)}
}

func (m *MemoryStore) Get(_ context.Context, client string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clicks[client], nil
}

func (m *MemoryStore) Increment(_ context.Context, client string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks[client]++
	return m.clicks[client], nil
}

func (m *MemoryStore) Delete(_ context.Context, client string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clicks, client)
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS clicks (
	client TEXT    PRIMARY KEY,
	clicks INTEGER NOT NULL DEFAULT 0
);`

// SQLiteStore persists counters in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore creates the schema in db if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, client string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT clicks FROM clicks WHERE client = ?`, client).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get clicks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Increment(ctx context.Context, client string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO clicks (client, clicks) VALUES (?, 1)
		 ON CONFLICT(client) DO UPDATE SET clicks = clicks + 1
		 RETURNING clicks`,
		client,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment clicks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, client string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM clicks WHERE client = ?`, client); err != nil {
		return fmt.Errorf("delete clicks: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package clicker

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
)

// Session reads and writes the browser session bound to the current
// request. All methods are no-ops without a SessionManager.
type Session struct {
	ctx     context.Context
	manager *scs.SessionManager
}

// Enabled reports whether a SessionManager is configured.
func (s *Session) Enabled() bool {
	return s.manager != nil && s.ctx != nil
}

func (s *Session) GetString(key string) string {
	if !s.Enabled() {
		return ""
	}
	return s.manager.GetString(s.ctx, key)
}

func (s *Session) Set(key string, val any) {
	if !s.Enabled() {
		return
	}
	s.manager.Put(s.ctx, key, val)
}

const sqliteSessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	token  TEXT PRIMARY KEY,
	data   BLOB NOT NULL,
	expiry REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`

// NewSQLiteSessionManager creates the sessions table in db if needed and
// returns a session manager persisting into it.
func NewSQLiteSessionManager(db *sql.DB) (*scs.SessionManager, error) {
	if _, err := db.Exec(sqliteSessionSchema); err != nil {
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	sm := scs.New()
	sm.Store = sqlite3store.New(db)
	return sm, nil
}

package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir  = ".xapi"
	defaultDBName = "xapi.db"

	defaultBusyTimeout = 5 * time.Second
)

type Config struct {
	Workspace string
	// InMemory opens a private in-memory database and ignores Workspace.
	InMemory bool
	// BusyTimeout is how long a writer waits on a lock held by another
	// process, such as serve and outbox flush sharing one workspace.
	BusyTimeout time.Duration
}

func (c Config) busyTimeout() time.Duration {
	if c.BusyTimeout <= 0 {
		return defaultBusyTimeout
	}
	return c.BusyTimeout
}

// dsn builds a modernc sqlite DSN. File databases use WAL so readers do not
// block the writer.
func (c Config) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.busyTimeout().Milliseconds()))
	if c.InMemory {
		return "file::memory:?" + q.Encode()
	}
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + filepath.ToSlash(dbPath(c.Workspace)) + "?" + q.Encode()
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, defaultDBName)
}

// EnsureWorkspace creates the .xapi directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Dir(dbPath(workspace))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the SQLite database. A single connection serializes writes
// from this process.
func Open(cfg Config) (*sql.DB, error) {
	if !cfg.InMemory {
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
	}
	conn, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

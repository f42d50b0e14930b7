package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"xapikit/internal/db"
	"xapikit/internal/migrate"
	"xapikit/xapi"
)

// Store persists statements, documents and the client outbox in SQLite.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Open opens the workspace database and applies migrations.
func Open(ctx context.Context, cfg db.Config) (Store, error) {
	conn, err := db.Open(cfg)
	if err != nil {
		return Store{}, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return Store{}, err
	}
	st := Store{DB: conn}
	current, latest, err := st.SchemaVersion(ctx)
	if err != nil {
		conn.Close()
		return Store{}, err
	}
	if current != latest {
		conn.Close()
		return Store{}, fmt.Errorf("database schema version %d, this build expects %d", current, latest)
	}
	return st, nil
}

// SchemaVersion reports the applied schema version and the newest one
// embedded in this build.
func (s Store) SchemaVersion(ctx context.Context) (current, latest int, err error) {
	if current, err = migrate.Current(ctx, s.DB); err != nil {
		return 0, 0, err
	}
	if latest, err = migrate.Latest(); err != nil {
		return 0, 0, err
	}
	return current, latest, nil
}

// Close closes the underlying database.
func (s Store) Close() error { return s.DB.Close() }

func (s Store) now() string {
	if s.Now == nil {
		return xapi.FormatTimestamp(time.Now())
	}
	return xapi.FormatTimestamp(s.Now())
}


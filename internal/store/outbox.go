package store

import (
	"context"
	"database/sql"

	"xapikit/xapi"
)

const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
)

// OutboxEntry is a statement queued for submission to a remote LRS.
type OutboxEntry struct {
	Seq         int64  `json:"seq"`
	Body        string `json:"body"`
	Endpoint    string `json:"endpoint"`
	StatementID string `json:"statement_id,omitempty"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   string `json:"created_at"`
	SentAt      string `json:"sent_at,omitempty"`
}

// Statement decodes the queued body.
func (e OutboxEntry) Statement() (xapi.Statement, error) {
	return xapi.UnmarshalStatement([]byte(e.Body))
}

// Enqueue validates st and queues it for endpoint.
func (s Store) Enqueue(ctx context.Context, st xapi.Statement, endpoint string) (OutboxEntry, error) {
	body, err := xapi.MarshalStatement(st)
	if err != nil {
		return OutboxEntry{}, err
	}
	e := OutboxEntry{Body: string(body), Endpoint: endpoint, Status: OutboxPending, CreatedAt: s.now()}
	res, err := s.DB.ExecContext(ctx, `INSERT INTO outbox(body,endpoint,status,created_at) VALUES (?,?,?,?)`,
		e.Body, e.Endpoint, e.Status, e.CreatedAt)
	if err != nil {
		return OutboxEntry{}, err
	}
	e.Seq, err = res.LastInsertId()
	return e, err
}

// Pending returns up to limit unsent entries in queue order.
func (s Store) Pending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = xapi.DefaultQueryLimit
	}
	return s.listOutbox(ctx, `WHERE status=? ORDER BY seq LIMIT ?`, OutboxPending, limit)
}

// ListOutbox returns entries with status, or all entries when status is empty.
func (s Store) ListOutbox(ctx context.Context, status string) ([]OutboxEntry, error) {
	if status == "" {
		return s.listOutbox(ctx, `ORDER BY seq`)
	}
	return s.listOutbox(ctx, `WHERE status=? ORDER BY seq`, status)
}

func (s Store) listOutbox(ctx context.Context, clause string, args ...any) ([]OutboxEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT seq,body,endpoint,statement_id,status,attempts,last_error,created_at,sent_at FROM outbox `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var sent sql.NullString
		if err := rows.Scan(&e.Seq, &e.Body, &e.Endpoint, &e.StatementID, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt, &sent); err != nil {
			return nil, err
		}
		if sent.Valid {
			e.SentAt = sent.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// MarkSent records the id the LRS assigned to entry seq.
func (s Store) MarkSent(ctx context.Context, seq int64, statementID string) error {
	return s.updateOutbox(ctx, `UPDATE outbox SET status=?, statement_id=?, sent_at=?, attempts=attempts+1, last_error='' WHERE seq=?`,
		OutboxSent, statementID, s.now(), seq)
}

// MarkFailed records a failed attempt; the entry stays pending.
func (s Store) MarkFailed(ctx context.Context, seq int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.updateOutbox(ctx, `UPDATE outbox SET attempts=attempts+1, last_error=? WHERE seq=?`, msg, seq)
}

func (s Store) updateOutbox(ctx context.Context, query string, args ...any) error {
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}


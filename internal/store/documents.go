package store

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"xapikit/xapi"
)

// DocumentKind names the document resource a document lives in.
type DocumentKind string

const (
	StateDocument           DocumentKind = "state"
	AgentProfileDocument    DocumentKind = "agent_profile"
	ActivityProfileDocument DocumentKind = "activity_profile"
)

// DocumentKey addresses a document. Fields unused by a kind stay empty.
// Agent holds the identifier of the agent, not its JSON.
type DocumentKey struct {
	Kind         DocumentKind
	ActivityID   string
	Agent        string
	Registration string
	DocID        string
}

type Document struct {
	Key         DocumentKey
	ContentType string
	Content     []byte
	ETag        string
	Updated     string
}

// ETag returns the quoted SHA-1 of content.
func ETag(content []byte) string {
	sum := sha1.Sum(content)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// PutDocument creates or replaces a document. When ifMatch is set it must
// equal the stored ETag.
func (s Store) PutDocument(ctx context.Context, doc Document, ifMatch string) (Document, error) {
	if doc.Key.DocID == "" {
		return Document{}, fmt.Errorf("document id is required")
	}
	if ifMatch != "" {
		current, err := s.GetDocument(ctx, doc.Key)
		if err != nil {
			return Document{}, err
		}
		if current.ETag != ifMatch {
			return Document{}, fmt.Errorf("document %s: %w", doc.Key.DocID, ErrConflict)
		}
	}
	doc.ETag = ETag(doc.Content)
	doc.Updated = s.now()
	k := doc.Key
	_, err := s.DB.ExecContext(ctx, `INSERT INTO documents(kind,activity_id,agent,registration,doc_id,content_type,content,etag,updated)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(kind,activity_id,agent,registration,doc_id) DO UPDATE SET
		content_type=excluded.content_type, content=excluded.content, etag=excluded.etag, updated=excluded.updated`,
		string(k.Kind), k.ActivityID, k.Agent, k.Registration, k.DocID, doc.ContentType, doc.Content, doc.ETag, doc.Updated)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s Store) GetDocument(ctx context.Context, k DocumentKey) (Document, error) {
	doc := Document{Key: k}
	err := s.DB.QueryRowContext(ctx, `SELECT content_type,content,etag,updated FROM documents
		WHERE kind=? AND activity_id=? AND agent=? AND registration=? AND doc_id=?`,
		string(k.Kind), k.ActivityID, k.Agent, k.Registration, k.DocID).Scan(&doc.ContentType, &doc.Content, &doc.ETag, &doc.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// ListDocumentIDs lists ids under k ignoring k.DocID, optionally only those
// updated after since.
func (s Store) ListDocumentIDs(ctx context.Context, k DocumentKey, since *time.Time) ([]string, error) {
	query := `SELECT doc_id FROM documents WHERE kind=? AND activity_id=? AND agent=? AND registration=?`
	args := []any{string(k.Kind), k.ActivityID, k.Agent, k.Registration}
	if since != nil {
		query += ` AND updated>?`
		args = append(args, xapi.FormatTimestamp(*since))
	}
	rows, err := s.DB.QueryContext(ctx, query+` ORDER BY doc_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteDocument removes one document, or every document under k when
// k.DocID is empty.
func (s Store) DeleteDocument(ctx context.Context, k DocumentKey) error {
	query := `DELETE FROM documents WHERE kind=? AND activity_id=? AND agent=? AND registration=?`
	args := []any{string(k.Kind), k.ActivityID, k.Agent, k.Registration}
	if k.DocID != "" {
		query += ` AND doc_id=?`
		args = append(args, k.DocID)
	}
	_, err := s.DB.ExecContext(ctx, query, args...)
	return err
}

package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"xapikit/xapi"
)

// StatementFilter narrows QueryStatements. Empty fields match everything.
type StatementFilter struct {
	VerbID            string
	ActivityID        string
	RegistrationID    string
	Agent             string
	RelatedActivities bool
	RelatedAgents     bool
	Since             *time.Time
	Until             *time.Time
}

// StatementPage is one page of query results. Cursor is the seq to resume
// after when More is set.
type StatementPage struct {
	Statements []xapi.Statement
	Cursor     int64
	More       bool
}

func statementColumns(s xapi.Statement) (verbID, objectID, registration, actorIFI, voidingTarget string) {
	verbID = s.Verb.ID()
	objectID = xapi.ObjectID(s.Object)
	if s.Context != nil {
		registration = s.Context.Registration
	}
	actorIFI = s.Actor.Identifier()
	if s.IsVoiding() {
		voidingTarget, _ = xapi.VoidedTarget(s)
	}
	return
}

// InsertStatement stores s, which must already carry its id and stored time.
// Storing a voiding statement marks its target voided. An existing id with a
// different body is ErrConflict; an identical body is a no-op.
func (s Store) InsertStatement(ctx context.Context, st xapi.Statement) error {
	return s.InsertStatements(ctx, []xapi.Statement{st})
}

// InsertStatements stores a batch in one transaction. Any failure leaves
// none of the batch stored.
func (s Store) InsertStatements(ctx context.Context, statements []xapi.Statement) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, st := range statements {
		if err := insertStatement(ctx, tx, st); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertStatement(ctx context.Context, tx *sql.Tx, st xapi.Statement) error {
	if st.ID == "" || st.Stored == "" {
		return fmt.Errorf("statement needs id and stored before insert")
	}
	body, err := xapi.MarshalStatement(st)
	if err != nil {
		return err
	}
	var existing string
	err = tx.QueryRowContext(ctx, `SELECT body FROM statements WHERE id=?`, st.ID).Scan(&existing)
	switch {
	case err == nil:
		if sameStatement([]byte(existing), body) {
			return nil
		}
		return fmt.Errorf("statement %s: %w", st.ID, ErrConflict)
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	verbID, objectID, registration, actorIFI, voidingTarget := statementColumns(st)
	if voidingTarget != "" {
		if err := voidTarget(ctx, tx, voidingTarget); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO statements(id,stored,seq,timestamp,verb_id,object_id,registration,actor_ifi,voided,voiding_target,body)
		VALUES (?,?,(SELECT COALESCE(MAX(seq),0)+1 FROM statements),?,?,?,?,?,0,?,?)`,
		st.ID, st.Stored, st.Timestamp, verbID, objectID, registration, actorIFI, voidingTarget, string(body))
	return err
}

// sameStatement compares bodies ignoring the LRS-assigned stored time.
func sameStatement(a, b []byte) bool {
	sa, errA := xapi.UnmarshalStatement(a)
	sb, errB := xapi.UnmarshalStatement(b)
	if errA != nil || errB != nil {
		return bytes.Equal(a, b)
	}
	sa.Stored, sb.Stored = "", ""
	ra, errA := xapi.MarshalStatement(sa)
	rb, errB := xapi.MarshalStatement(sb)
	return errA == nil && errB == nil && bytes.Equal(ra, rb)
}

func voidTarget(ctx context.Context, tx *sql.Tx, id string) error {
	var target string
	err := tx.QueryRowContext(ctx, `SELECT voiding_target FROM statements WHERE id=?`, id).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if target != "" {
		return fmt.Errorf("statement %s is itself a voiding statement and cannot be voided", id)
	}
	_, err = tx.ExecContext(ctx, `UPDATE statements SET voided=1 WHERE id=?`, id)
	return err
}

// VoidStatement marks the statement with id voided outside of a voiding
// statement insert.
func (s Store) VoidStatement(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE statements SET voided=1 WHERE id=? AND voiding_target=''`, id)
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

// GetStatement returns the statement with id. With voided set only a voided
// statement matches; otherwise only a statement that is not voided does.
func (s Store) GetStatement(ctx context.Context, id string, voided bool) (xapi.Statement, error) {
	flag := 0
	if voided {
		flag = 1
	}
	var body string
	err := s.DB.QueryRowContext(ctx, `SELECT body FROM statements WHERE id=? AND voided=?`, id, flag).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return xapi.Statement{}, ErrNotFound
	}
	if err != nil {
		return xapi.Statement{}, err
	}
	return xapi.UnmarshalStatement([]byte(body))
}

// QueryStatements returns up to limit statements stored after cursor, oldest
// first. Voided statements are never returned.
func (s Store) QueryStatements(ctx context.Context, f StatementFilter, cursor int64, limit int) (StatementPage, error) {
	if limit <= 0 {
		limit = xapi.DefaultQueryLimit
	}
	where := []string{"voided=0", "seq>?"}
	args := []any{cursor}
	if f.VerbID != "" {
		where = append(where, "verb_id=?")
		args = append(args, f.VerbID)
	}
	if f.ActivityID != "" && !f.RelatedActivities {
		where = append(where, "object_id=?")
		args = append(args, f.ActivityID)
	}
	if f.RegistrationID != "" {
		where = append(where, "registration=?")
		args = append(args, f.RegistrationID)
	}
	if f.Agent != "" && !f.RelatedAgents {
		where = append(where, "actor_ifi=?")
		args = append(args, f.Agent)
	}
	if f.Since != nil {
		where = append(where, "stored>?")
		args = append(args, xapi.FormatTimestamp(*f.Since))
	}
	if f.Until != nil {
		where = append(where, "stored<=?")
		args = append(args, xapi.FormatTimestamp(*f.Until))
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT seq,body FROM statements WHERE `+strings.Join(where, " AND ")+` ORDER BY seq`, args...)
	if err != nil {
		return StatementPage{}, err
	}
	defer rows.Close()

	page := StatementPage{Cursor: cursor}
	for rows.Next() {
		var seq int64
		var body string
		if err := rows.Scan(&seq, &body); err != nil {
			return StatementPage{}, err
		}
		st, err := xapi.UnmarshalStatement([]byte(body))
		if err != nil {
			return StatementPage{}, fmt.Errorf("statement seq %d: %w", seq, err)
		}
		if f.RelatedActivities && f.ActivityID != "" && !contains(relatedActivityIDs(st), f.ActivityID) {
			continue
		}
		if f.RelatedAgents && f.Agent != "" && !contains(relatedAgentIDs(st), f.Agent) {
			continue
		}
		if len(page.Statements) == limit {
			page.More = true
			break
		}
		page.Statements = append(page.Statements, st)
		page.Cursor = seq
	}
	return page, rows.Err()
}

// LatestActivity returns the most recently stored definition of activity id.
func (s Store) LatestActivity(ctx context.Context, id string) (xapi.Activity, error) {
	var body string
	err := s.DB.QueryRowContext(ctx, `SELECT body FROM statements WHERE object_id=? ORDER BY seq DESC LIMIT 1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return xapi.Activity{}, ErrNotFound
	}
	if err != nil {
		return xapi.Activity{}, err
	}
	st, err := xapi.UnmarshalStatement([]byte(body))
	if err != nil {
		return xapi.Activity{}, err
	}
	a, ok := st.Object.(xapi.Activity)
	if !ok {
		return xapi.Activity{}, ErrNotFound
	}
	return a, nil
}

func relatedActivityIDs(st xapi.Statement) []string {
	var ids []string
	if a, ok := st.Object.(xapi.Activity); ok {
		ids = append(ids, a.ID)
	}
	if sub, ok := st.Object.(xapi.Statement); ok {
		ids = append(ids, relatedActivityIDs(sub)...)
	}
	if st.Context != nil && st.Context.ContextActivities != nil {
		ca := st.Context.ContextActivities
		for _, list := range [][]xapi.Activity{ca.Parent, ca.Grouping, ca.Category, ca.Other} {
			for _, a := range list {
				ids = append(ids, a.ID)
			}
		}
	}
	return ids
}

func relatedAgentIDs(st xapi.Statement) []string {
	var ids []string
	add := func(a *xapi.Actor) {
		if a == nil {
			return
		}
		if id := a.Identifier(); id != "" {
			ids = append(ids, id)
		}
		for i := range a.Members {
			ids = append(ids, a.Members[i].Identifier())
		}
	}
	add(&st.Actor)
	add(st.Authority)
	switch obj := st.Object.(type) {
	case xapi.Actor:
		add(&obj)
	case xapi.Statement:
		ids = append(ids, relatedAgentIDs(obj)...)
	}
	if st.Context != nil {
		add(st.Context.Instructor)
		add(st.Context.Team)
	}
	return ids
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

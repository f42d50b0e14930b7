package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xapikit/internal/db"
	"xapikit/internal/migrate"
	"xapikit/xapi"
)

func setupStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(context.Background(), db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var clock = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func stored(st xapi.Statement, offset time.Duration) xapi.Statement {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.Stored = xapi.FormatTimestamp(clock.Add(offset))
	return st
}

func completed(email, activity string) xapi.Statement {
	return xapi.NewStatement(xapi.AgentFromMailbox("", email), xapi.Verbs.Completed(), xapi.NewActivity(activity))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, s.DB))
	current, latest, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest, current)
	assert.Equal(t, 1, current)
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), db.Config{Workspace: dir})
	require.NoError(t, err)
	_, err = s.DB.Exec(`UPDATE schema_version SET version=99`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), db.Config{Workspace: dir})
	assert.ErrorContains(t, err, "schema version 99")
}

func TestInsertAndGetStatement(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	st := stored(completed("a@example.com", "https://example.com/a"), 0)
	require.NoError(t, s.InsertStatement(ctx, st))

	got, err := s.GetStatement(ctx, st.ID, false)
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)
	assert.Equal(t, "a@example.com", got.Actor.Mailbox)

	_, err = s.GetStatement(ctx, st.ID, true)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetStatement(ctx, uuid.NewString(), false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertStatementConflict(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	st := stored(completed("a@example.com", "https://example.com/a"), 0)
	require.NoError(t, s.InsertStatement(ctx, st))

	again := st
	again.Stored = xapi.FormatTimestamp(clock.Add(time.Hour))
	assert.NoError(t, s.InsertStatement(ctx, again))

	changed := st
	changed.Object = xapi.NewActivity("https://example.com/b")
	assert.ErrorIs(t, s.InsertStatement(ctx, changed), ErrConflict)
}

func TestInsertStatementsIsAtomic(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	target := stored(completed("a@example.com", "https://example.com/a"), 0)
	require.NoError(t, s.InsertStatement(ctx, target))

	voiding := stored(xapi.NewVoidingStatement(xapi.AgentFromMailbox("", "admin@example.com"), target.ID), time.Minute)
	changed := target
	changed.Object = xapi.NewActivity("https://example.com/b")
	err := s.InsertStatements(ctx, []xapi.Statement{voiding, changed})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.GetStatement(ctx, voiding.ID, false)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetStatement(ctx, target.ID, false)
	assert.NoError(t, err, "target must not stay voided after rollback")

	fresh := stored(completed("b@example.com", "https://example.com/a"), time.Minute)
	require.NoError(t, s.InsertStatements(ctx, []xapi.Statement{fresh, voiding}))
	_, err = s.GetStatement(ctx, target.ID, true)
	assert.NoError(t, err)
}

func TestVoidingStatementHidesTarget(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	target := stored(completed("a@example.com", "https://example.com/a"), 0)
	require.NoError(t, s.InsertStatement(ctx, target))
	voiding := stored(xapi.NewVoidingStatement(xapi.AgentFromMailbox("", "admin@example.com"), target.ID), time.Minute)
	require.NoError(t, s.InsertStatement(ctx, voiding))

	_, err := s.GetStatement(ctx, target.ID, false)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := s.GetStatement(ctx, target.ID, true)
	require.NoError(t, err)
	assert.Equal(t, target.ID, got.ID)

	page, err := s.QueryStatements(ctx, StatementFilter{}, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Statements, 1)
	assert.Equal(t, voiding.ID, page.Statements[0].ID)

	again := stored(xapi.NewVoidingStatement(xapi.AgentFromMailbox("", "admin@example.com"), voiding.ID), 2*time.Minute)
	assert.Error(t, s.InsertStatement(ctx, again))
}

func TestQueryStatementsFiltersAndPages(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	reg := uuid.NewString()
	for i := 0; i < 5; i++ {
		st := completed("a@example.com", "https://example.com/a")
		if i%2 == 0 {
			st = st.WithContext(xapi.Context{Registration: reg})
		}
		require.NoError(t, s.InsertStatement(ctx, stored(st, time.Duration(i)*time.Minute)))
	}
	other := xapi.NewStatement(xapi.AgentFromMailbox("", "b@example.com"), xapi.Verbs.Attempted(), xapi.NewActivity("https://example.com/b"))
	ctxActs := xapi.Context{}
	ctxActs.Activities().AddParentID("https://example.com/a")
	other = other.WithContext(ctxActs)
	require.NoError(t, s.InsertStatement(ctx, stored(other, 10*time.Minute)))

	page, err := s.QueryStatements(ctx, StatementFilter{VerbID: xapi.Verbs.Completed().ID()}, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page.Statements, 2)
	assert.True(t, page.More)

	next, err := s.QueryStatements(ctx, StatementFilter{VerbID: xapi.Verbs.Completed().ID()}, page.Cursor, 10)
	require.NoError(t, err)
	assert.Len(t, next.Statements, 3)
	assert.False(t, next.More)

	byReg, err := s.QueryStatements(ctx, StatementFilter{RegistrationID: reg}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, byReg.Statements, 3)

	direct, err := s.QueryStatements(ctx, StatementFilter{ActivityID: "https://example.com/a"}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, direct.Statements, 5)

	related, err := s.QueryStatements(ctx, StatementFilter{ActivityID: "https://example.com/a", RelatedActivities: true}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, related.Statements, 6)

	agent, err := s.QueryStatements(ctx, StatementFilter{Agent: "mailto:b@example.com"}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, agent.Statements, 1)

	since := clock.Add(3 * time.Minute)
	recent, err := s.QueryStatements(ctx, StatementFilter{Since: &since}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, recent.Statements, 2)
}

func TestLatestActivity(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	st := xapi.NewStatement(xapi.AgentFromMailbox("", "a@example.com"), xapi.Verbs.Experienced(),
		xapi.NamedActivity("https://example.com/a", "en-US", "Intro"))
	require.NoError(t, s.InsertStatement(ctx, stored(st, 0)))

	a, err := s.LatestActivity(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, a.Definition)
	assert.Equal(t, "Intro", a.Definition.Name["en-US"])

	_, err = s.LatestActivity(ctx, "https://example.com/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocuments(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	key := DocumentKey{Kind: StateDocument, ActivityID: "https://example.com/a", Agent: "mailto:a@example.com", DocID: "bookmark"}

	doc, err := s.PutDocument(ctx, Document{Key: key, ContentType: "application/json", Content: []byte(`{"page":1}`)}, "")
	require.NoError(t, err)
	assert.Equal(t, ETag([]byte(`{"page":1}`)), doc.ETag)

	_, err = s.PutDocument(ctx, Document{Key: key, Content: []byte(`{"page":2}`)}, `"stale"`)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.PutDocument(ctx, Document{Key: key, ContentType: "application/json", Content: []byte(`{"page":2}`)}, doc.ETag)
	require.NoError(t, err)

	got, err := s.GetDocument(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":2}`, string(got.Content))

	other := key
	other.DocID = "progress"
	_, err = s.PutDocument(ctx, Document{Key: other, Content: []byte("x")}, "")
	require.NoError(t, err)

	ids, err := s.ListDocumentIDs(ctx, key, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bookmark", "progress"}, ids)

	require.NoError(t, s.DeleteDocument(ctx, key))
	ids, err = s.ListDocumentIDs(ctx, key, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"progress"}, ids)

	all := key
	all.DocID = ""
	require.NoError(t, s.DeleteDocument(ctx, all))
	_, err = s.GetDocument(ctx, other)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutbox(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	e1, err := s.Enqueue(ctx, completed("a@example.com", "https://example.com/a"), "https://lrs.example.com/xapi/")
	require.NoError(t, err)
	e2, err := s.Enqueue(ctx, completed("b@example.com", "https://example.com/a"), "https://lrs.example.com/xapi/")
	require.NoError(t, err)
	assert.Less(t, e1.Seq, e2.Seq)

	_, err = s.Enqueue(ctx, xapi.Statement{}, "")
	assert.Error(t, err)

	require.NoError(t, s.MarkFailed(ctx, e1.Seq, assert.AnError))
	require.NoError(t, s.MarkSent(ctx, e2.Seq, "6690e6c9-3ef0-4ed3-8b37-7f3964730bee"))
	assert.ErrorIs(t, s.MarkSent(ctx, 999, "x"), ErrNotFound)

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, e1.Seq, pending[0].Seq)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, assert.AnError.Error(), pending[0].LastError)

	sent, err := s.ListOutbox(ctx, OutboxSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "6690e6c9-3ef0-4ed3-8b37-7f3964730bee", sent[0].StatementID)
	assert.NotEmpty(t, sent[0].SentAt)

	all, err := s.ListOutbox(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	st, err := all[0].Statement()
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", st.Actor.Mailbox)
}

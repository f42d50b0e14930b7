package xapi

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStatementID = "6690e6c9-3ef0-4ed3-8b37-7f3964730bee"

func sampleStatement() Statement {
	ctx := Context{Registration: "ec531277-b57b-4c15-8d91-d292c5b2b8f7", Platform: "xapikit"}
	ctx.Activities().AddParentID("https://example.com/course/1")
	return NewStatement(
		AgentFromMailbox("Ann", "ann@example.com"),
		Verbs.Completed(),
		NamedActivity("https://example.com/course/1/lesson/2", "en-US", "Lesson 2"),
	).WithID(testStatementID).
		WithResult(Result{}.WithCompletion(true).WithScore(NewScore(8, 0, 10)).WithDuration(90 * time.Second)).
		WithContext(ctx)
}

func TestNewStatementDefaults(t *testing.T) {
	s := NewStatement(AgentFromMailbox("", "a@example.com"), Verbs.Launched(), NewActivity("https://example.com/a"))
	assert.Equal(t, Version, s.Version)
	_, err := time.Parse(TimestampLayout, s.Timestamp)
	require.NoError(t, err)
	assert.False(t, s.IsSubStatement)
}

func TestStatementRoundTrip(t *testing.T) {
	s := sampleStatement()
	raw, err := MarshalStatement(s)
	require.NoError(t, err)

	back, err := UnmarshalStatement(raw)
	require.NoError(t, err)

	again, err := MarshalStatement(back)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(again))
	assert.Equal(t, s, back)

	assert.Equal(t, "completed", back.Verb.Name())
	assert.Equal(t, Mailbox, back.Actor.Kind)
	d, ok := back.Result.Duration()
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, d)
	scaled, ok := back.Result.Score.Scaled()
	require.True(t, ok)
	assert.InDelta(t, 0.8, scaled, 1e-9)
}

func TestStatementRoundTripGroupsAndSubStatement(t *testing.T) {
	team := AnonymousGroup("Pair", AgentFromMailbox("Bob", "bob@example.com"), AgentFromOpenID("", "https://id.example.com/cy"))
	instructor := AgentFromAccount("Dee", "https://lms.example.com", "dee")
	actor := AgentFromAccount("Study Group", "https://lms.example.com", "group-7").
		AsGroup().
		WithMember(AgentFromMailbox("Ann", "ann@example.com"))
	sub := NewSubStatement(AgentFromMailbox("Ann", "ann@example.com"), Verbs.Attempted(), NewActivity("https://example.com/quiz"))
	s := NewStatement(actor, Verbs.Commented(), sub).
		WithID(testStatementID).
		WithContext(Context{Registration: "ec531277-b57b-4c15-8d91-d292c5b2b8f7", Instructor: &instructor, Team: &team})

	raw, err := MarshalStatement(s)
	require.NoError(t, err)
	back, err := UnmarshalStatement(raw)
	require.NoError(t, err)
	assert.Equal(t, s, back)

	nested, ok := back.Object.(Statement)
	require.True(t, ok)
	assert.True(t, nested.IsSubStatement)
	assert.True(t, back.Actor.IsGroup())
	assert.Equal(t, NoIdentifier, back.Context.Team.Kind)
}

func TestSubStatementSuppressesTopLevelFields(t *testing.T) {
	sub := NewStatement(AgentFromMailbox("Bob", "bob@example.com"), Verbs.Attempted(), NewActivity("https://example.com/quiz")).
		WithID(testStatementID).
		WithAuthority(AgentFromOpenID("", "https://lrs.example.com/auth")).
		AsSubStatement()
	sub.Stored = "2024-01-01T00:00:00.000Z"

	raw, err := json.Marshal(sub)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"id", "stored", "authority", "version"} {
		assert.NotContains(t, fields, key)
	}
	assert.JSONEq(t, `"SubStatement"`, string(fields["objectType"]))
}

func TestStatementAsObjectBecomesSubStatement(t *testing.T) {
	inner := NewStatement(AgentFromMailbox("Bob", "bob@example.com"), Verbs.Attempted(), NewActivity("https://example.com/quiz"))
	outer := NewStatement(AgentFromMailbox("Ann", "ann@example.com"), Verbs.Shared(), inner)

	raw, err := MarshalStatement(outer)
	require.NoError(t, err)

	back, err := UnmarshalStatement(raw)
	require.NoError(t, err)
	obj, ok := back.Object.(Statement)
	require.True(t, ok)
	assert.True(t, obj.IsSubStatement)
	assert.Equal(t, "SubStatement", obj.ObjectType())
	assert.Empty(t, obj.Version)
}

func TestNestedSubStatementRejected(t *testing.T) {
	deepest := NewSubStatement(AgentFromMailbox("", "c@example.com"), Verbs.Asked(), NewActivity("https://example.com/q"))
	middle := NewSubStatement(AgentFromMailbox("", "b@example.com"), Verbs.Answered(), deepest)
	outer := NewStatement(AgentFromMailbox("", "a@example.com"), Verbs.Shared(), middle)

	err := outer.Validate()
	assert.ErrorIs(t, err, ErrNestedSubStatement)
}

func TestUnmarshalStatementMalformed(t *testing.T) {
	cases := map[string]string{
		"invalid json":   `{"actor":`,
		"missing actor":  `{"verb":{"id":"v"},"object":{"id":"o"}}`,
		"missing verb":   `{"actor":{"mbox":"mailto:a@example.com"},"object":{"id":"o"}}`,
		"null object":    `{"actor":{"mbox":"mailto:a@example.com"},"verb":{"id":"v"},"object":null}`,
		"unknown object": `{"actor":{"mbox":"mailto:a@example.com"},"verb":{"id":"v"},"object":{"objectType":"Thing"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalStatement([]byte(body))
			var mErr *MalformedResponseError
			assert.True(t, errors.As(err, &mErr), "got %v", err)
		})
	}
}

func TestStatementObjectDiscriminators(t *testing.T) {
	actor := AgentFromMailbox("", "a@example.com")
	cases := []struct {
		name   string
		object Object
		want   string
	}{
		{"activity", NewActivity("https://example.com/a"), ""},
		{"agent", AgentFromMailbox("", "b@example.com"), `"Agent"`},
		{"group", AnonymousGroup("", AgentFromMailbox("", "b@example.com")), `"Group"`},
		{"statement ref", StatementRef{ID: testStatementID}, `"StatementRef"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := json.Marshal(NewStatement(actor, Verbs.Experienced(), tc.object))
			require.NoError(t, err)
			var doc struct {
				Object map[string]json.RawMessage `json:"object"`
			}
			require.NoError(t, json.Unmarshal(raw, &doc))
			if tc.want == "" {
				assert.NotContains(t, doc.Object, "objectType")
				return
			}
			assert.JSONEq(t, tc.want, string(doc.Object["objectType"]))
		})
	}
}

func TestEmptyCollectionsOmitted(t *testing.T) {
	s := NewStatement(AgentFromMailbox("", "a@example.com"), NewVerb("custom", "https://example.com/verbs/custom"), NewActivity("https://example.com/a")).
		WithContext(Context{ContextActivities: &ContextActivities{}, Extensions: map[string]any{}})
	s.Object = Activity{ID: "https://example.com/a", Definition: &ActivityDefinition{Name: LanguageMap{}}}

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "context")
	assert.JSONEq(t, `{"id":"https://example.com/verbs/custom"}`, string(fields["verb"]))
	assert.JSONEq(t, `{"id":"https://example.com/a"}`, string(fields["object"]))
}

func TestContextActivitiesAcceptSingleObject(t *testing.T) {
	var c Context
	require.NoError(t, json.Unmarshal([]byte(`{"contextActivities":{"parent":{"id":"https://example.com/p"},"category":[{"id":"https://example.com/c"}]}}`), &c))
	require.NotNil(t, c.ContextActivities)
	require.Len(t, c.ContextActivities.Parent, 1)
	assert.Equal(t, "https://example.com/p", c.ContextActivities.Parent[0].ID)
	require.Len(t, c.ContextActivities.Category, 1)
}

func TestContextActivitiesAreIndependent(t *testing.T) {
	var ca ContextActivities
	ca.AddCategoryID("https://example.com/c")
	assert.Empty(t, ca.Parent)
	assert.Len(t, ca.Category, 1)
	ca.ClearCategory()
	assert.True(t, ca.IsEmpty())
}

func TestVoidingStatement(t *testing.T) {
	s := NewVoidingStatement(AgentFromMailbox("", "admin@example.com"), testStatementID)
	assert.True(t, s.IsVoiding())
	target, ok := VoidedTarget(s)
	require.True(t, ok)
	assert.Equal(t, testStatementID, target)
	require.NoError(t, s.Validate())
}

func TestValidateRejectsBadIDs(t *testing.T) {
	s := sampleStatement().WithID("not-a-uuid")
	assert.Error(t, s.Validate())

	s = sampleStatement()
	s.Context.Registration = "nope"
	assert.Error(t, s.Validate())
}

package xapi

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementQueryExclusiveIDs(t *testing.T) {
	q := NewStatementQuery()
	q.StatementID = "abc"
	q.VoidedStatementID = "def"
	q.VerbID = "https://example.com/v"
	q.RelatedAgents = BoolPtr(true)
	assert.Equal(t, "?format=exact&statementId=abc", q.BuildQueryString())

	q.StatementID = ""
	assert.Equal(t, "?format=exact&voidedStatementId=def", q.BuildQueryString())
}

func TestStatementQueryLimitNotSent(t *testing.T) {
	q := StatementQuery{VerbID: "v1", Limit: 10}
	assert.Equal(t, "?format=exact&verbId=v1", q.BuildQueryString())
	assert.Equal(t, "?format=exact", NewStatementQuery().BuildQueryString())
	assert.Equal(t, DefaultQueryLimit, NewStatementQuery().Limit)
}

func TestStatementQueryOrderAndEncoding(t *testing.T) {
	since := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	until := since.Add(time.Hour)
	q := StatementQuery{
		RegistrationID:    "ec531277-b57b-4c15-8d91-d292c5b2b8f7",
		ActivityID:        "https://example.com/a b",
		VerbID:            "https://adlnet.gov/expapi/verbs/completed",
		Until:             &until,
		Since:             &since,
		RelatedActivities: BoolPtr(false),
		RelatedAgents:     BoolPtr(true),
	}
	got := q.BuildQueryString()
	want := "?format=exact" +
		"&related_agents=true" +
		"&related_activities=false" +
		"&since=2024-03-01T12%3A30%3A00.000Z" +
		"&until=2024-03-01T13%3A30%3A00.000Z" +
		"&verbId=https%3A%2F%2Fadlnet.gov%2Fexpapi%2Fverbs%2Fcompleted" +
		"&activityId=https%3A%2F%2Fexample.com%2Fa+b" +
		"&registrationId=ec531277-b57b-4c15-8d91-d292c5b2b8f7"
	assert.Equal(t, want, got)
	assert.False(t, strings.HasSuffix(got, "&"))
}

func TestParseStatementQueryRoundTrip(t *testing.T) {
	since := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	in := StatementQuery{VerbID: "https://example.com/v", Since: &since, RelatedAgents: BoolPtr(true), Limit: DefaultQueryLimit}
	values, err := url.ParseQuery(strings.TrimPrefix(in.BuildQueryString(), "?"))
	require.NoError(t, err)

	out, err := ParseStatementQuery(values)
	require.NoError(t, err)
	assert.Equal(t, in.VerbID, out.VerbID)
	require.NotNil(t, out.Since)
	assert.True(t, since.Equal(*out.Since))
	require.NotNil(t, out.RelatedAgents)
	assert.True(t, *out.RelatedAgents)
	assert.Equal(t, in.BuildQueryString(), out.BuildQueryString())

	_, err = ParseStatementQuery(url.Values{"limit": {"-1"}})
	assert.Error(t, err)
}

func TestStateQuery(t *testing.T) {
	agent := AgentFromMailbox("", "ann@example.com")
	q := StateQuery{ActivityID: "https://example.com/a", Agent: &agent, StateID: "bookmark"}
	got, err := q.BuildQueryString()
	require.NoError(t, err)
	assert.Equal(t, "?activityId=https%3A%2F%2Fexample.com%2Fa"+
		"&agent=%7B%22objectType%22%3A%22Agent%22%2C%22mbox%22%3A%22mailto%3Aann%40example.com%22%7D"+
		"&stateId=bookmark", got)

	_, err = StateQuery{Agent: &agent}.BuildQueryString()
	var missing *MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "activityId", missing.Parameter)

	_, err = StateQuery{ActivityID: "x"}.BuildQueryString()
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "agent", missing.Parameter)
}

func TestResourceQueriesEscapeSpacesAsPercent20(t *testing.T) {
	got, err := ActivityProfileQuery{ActivityID: "https://example.com/a", ProfileID: "my profile"}.BuildQueryString()
	require.NoError(t, err)
	assert.Equal(t, "?activityId=https%3A%2F%2Fexample.com%2Fa&profileId=my%20profile", got)

	got, err = ActivityQuery{ActivityID: "https://example.com/a"}.BuildQueryString()
	require.NoError(t, err)
	assert.Equal(t, "?activityId=https%3A%2F%2Fexample.com%2Fa", got)

	_, err = AgentProfileQuery{ProfileID: "p"}.BuildQueryString()
	assert.Error(t, err)
	_, err = AgentQuery{}.BuildQueryString()
	assert.Error(t, err)
}

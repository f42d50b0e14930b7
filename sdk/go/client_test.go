package xapisdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xapikit/xapi"
)

func newStubLRS(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewBasic(srv.URL+"/xapi", "user", "pass")
	require.NoError(t, err)
	return c, srv
}

func sampleStatement(email string) xapi.Statement {
	return xapi.NewStatement(xapi.AgentFromMailbox("", email), xapi.Verbs.Completed(), xapi.NewActivity("https://example.com/a"))
}

func TestRequestsCarryProtocolHeaders(t *testing.T) {
	c, _ := newStubLRS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Basic dXNlcjpwYXNz", r.Header.Get("Authorization"))
		assert.Equal(t, "1.0.0", r.Header.Get(xapi.VersionHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "/xapi/statements", r.URL.Path)
		w.Write([]byte(`["11111111-1111-1111-1111-111111111111"]`))
	})
	stored, err := c.SendStatement(context.Background(), sampleStatement("a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", stored.ID)
}

func TestSendStatementsDegradesOnBadResponse(t *testing.T) {
	c, _ := newStubLRS(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["only-one"]`))
	})
	stored, err := c.SendStatements(context.Background(), []xapi.Statement{sampleStatement("a@example.com"), sampleStatement("b@example.com")})
	var cErr *xapi.BatchCardinalityError
	require.True(t, errors.As(err, &cErr))
	require.Len(t, stored, 2)
	assert.Empty(t, stored[0].ID)
	assert.Empty(t, stored[1].ID)
}

func TestNon2xxReturnsAPIError(t *testing.T) {
	c, _ := newStubLRS(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"gone"}`))
	})
	_, err := c.GetStatement(context.Background(), "6690e6c9-3ef0-4ed3-8b37-7f3964730bee")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.True(t, IsNotFound(err))
}

func TestGetStatementSendsExactQuery(t *testing.T) {
	c, _ := newStubLRS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "format=exact&statementId=abc", r.URL.RawQuery)
		raw, _ := json.Marshal(sampleStatement("a@example.com").WithID("6690e6c9-3ef0-4ed3-8b37-7f3964730bee"))
		w.Write(raw)
	})
	s, err := c.GetStatement(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "6690e6c9-3ef0-4ed3-8b37-7f3964730bee", s.ID)
}

func TestFreshClientIsSafeForConcurrentRequests(t *testing.T) {
	raw, err := json.Marshal(sampleStatement("a@example.com").WithID("6690e6c9-3ef0-4ed3-8b37-7f3964730bee"))
	require.NoError(t, err)
	c, _ := newStubLRS(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(raw)
	})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetStatement(context.Background(), "6690e6c9-3ef0-4ed3-8b37-7f3964730bee")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestCollectStatementsFollowsMoreUpToLimit(t *testing.T) {
	var calls int32
	c, _ := newStubLRS(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n > 1 {
			assert.Equal(t, fmt.Sprintf("/xapi/statements/more/%d", n-1), r.URL.Path)
		}
		page := xapi.StatementResult{
			Statements: []xapi.Statement{
				sampleStatement(fmt.Sprintf("p%d-1@example.com", n)),
				sampleStatement(fmt.Sprintf("p%d-2@example.com", n)),
			},
			More: fmt.Sprintf("/xapi/statements/more/%d", n),
		}
		raw, _ := json.Marshal(page)
		w.Write(raw)
	})
	q := xapi.NewStatementQuery()
	q.Limit = 5
	res, err := c.CollectStatements(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Statements, 5)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "p1-1@example.com", res.Statements[0].Actor.Mailbox)
	assert.Equal(t, "p3-1@example.com", res.Statements[4].Actor.Mailbox)
	assert.Equal(t, "/xapi/statements/more/3", res.More)
}

func TestAboutIsCached(t *testing.T) {
	var calls int32
	c, _ := newStubLRS(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"version":["1.0.3","1.0.0"]}`))
	})
	for i := 0; i < 3; i++ {
		about, err := c.About(context.Background())
		require.NoError(t, err)
		assert.True(t, about.Supports("1.0.0"))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStateDocumentRoundTrip(t *testing.T) {
	stored := map[string][]byte{}
	c, _ := newStubLRS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xapi/activities/state", r.URL.Path)
		key := r.URL.Query().Get("stateId")
		switch r.Method {
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			stored[key] = b
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write(stored[key])
		}
	})
	agent := xapi.AgentFromMailbox("", "a@example.com")
	q := xapi.StateQuery{ActivityID: "https://example.com/a", Agent: &agent, StateID: "bookmark"}
	require.NoError(t, c.PutState(context.Background(), q, Document{Content: []byte(`{"page":3}`)}))
	doc, err := c.GetState(context.Background(), q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":3}`, string(doc.Content))
	assert.Equal(t, "bookmark", doc.ID)

	q.StateID = ""
	_, err = c.GetState(context.Background(), q)
	var missing *xapi.MissingParameterError
	assert.True(t, errors.As(err, &missing))
}

func TestFromOptionsValidatesCredential(t *testing.T) {
	_, err := FromOptions(Options{Endpoint: "https://lrs.example.com/xapi", AuthMethod: "basic-pre-encoded", Credential: "bm9jb2xvbg=="})
	assert.ErrorIs(t, err, xapi.ErrMissingCredentialSeparator)

	_, err = FromOptions(Options{Endpoint: "https://lrs.example.com/xapi", AuthMethod: "basic"})
	assert.Error(t, err)

	c, err := NewPreEncoded("https://lrs.example.com/xapi", "dXNlcjpwYXNz")
	require.NoError(t, err)
	assert.Equal(t, "Basic dXNlcjpwYXNz", c.Authorization)
	assert.Equal(t, "https://lrs.example.com/xapi/", c.Endpoint.String())
}

package xapisdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"xapikit/xapi"
)

func decodeJSON(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return &xapi.MalformedResponseError{Reason: "decode response", Err: err}
	}
	return nil
}

// SendStatement posts one statement and returns it paired with its assigned ID.
func (c *Client) SendStatement(ctx context.Context, s xapi.Statement) (xapi.StoredStatement, error) {
	stored, err := c.SendStatements(ctx, []xapi.Statement{s})
	if len(stored) == 0 {
		return xapi.StoredStatement{Statement: s}, err
	}
	return stored[0], err
}

// SendStatements posts a batch. When the response cannot be correlated the
// statements come back with empty IDs together with a
// *xapi.MalformedResponseError or *xapi.BatchCardinalityError; the batch was
// still accepted by the LRS.
func (c *Client) SendStatements(ctx context.Context, statements []xapi.Statement) ([]xapi.StoredStatement, error) {
	payload, err := xapi.BuildBatchPayload(statements)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, request{method: http.MethodPost, url: c.Endpoint.Statements(""), body: payload})
	if err != nil {
		return nil, err
	}
	stored, err := xapi.CorrelateIDs(statements, resp.body)
	if err != nil {
		c.Logger.Warn().Err(err).Int("count", len(statements)).Msg("batch ids not correlated")
	}
	return stored, err
}

// PutStatement stores a statement under its own ID.
func (c *Client) PutStatement(ctx context.Context, s xapi.Statement) error {
	if s.ID == "" {
		return errors.New("statement id is required for put")
	}
	payload, err := xapi.MarshalStatement(s)
	if err != nil {
		return err
	}
	query := "?statementId=" + url.QueryEscape(s.ID)
	_, err = c.do(ctx, request{method: http.MethodPut, url: c.Endpoint.Statements(query), body: payload})
	return err
}

// GetStatement fetches a statement by ID.
func (c *Client) GetStatement(ctx context.Context, id string) (xapi.Statement, error) {
	return c.getSingle(ctx, xapi.StatementQuery{StatementID: id})
}

// GetVoidedStatement fetches a voided statement by ID.
func (c *Client) GetVoidedStatement(ctx context.Context, id string) (xapi.Statement, error) {
	return c.getSingle(ctx, xapi.StatementQuery{VoidedStatementID: id})
}

func (c *Client) getSingle(ctx context.Context, q xapi.StatementQuery) (xapi.Statement, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, url: c.Endpoint.Statements(q.BuildQueryString())})
	if err != nil {
		return xapi.Statement{}, err
	}
	return xapi.UnmarshalStatement(resp.body)
}

// QueryStatements fetches the first page matching q.
func (c *Client) QueryStatements(ctx context.Context, q xapi.StatementQuery) (xapi.StatementResult, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, url: c.Endpoint.Statements(q.BuildQueryString())})
	if err != nil {
		return xapi.StatementResult{}, err
	}
	return xapi.UnmarshalStatementResult(resp.body)
}

// MoreStatements fetches the page behind a more IRL.
func (c *Client) MoreStatements(ctx context.Context, more string) (xapi.StatementResult, error) {
	target, err := c.Endpoint.More(more)
	if err != nil {
		return xapi.StatementResult{}, err
	}
	resp, err := c.do(ctx, request{method: http.MethodGet, url: target})
	if err != nil {
		return xapi.StatementResult{}, err
	}
	return xapi.UnmarshalStatementResult(resp.body)
}

// CollectStatements follows more IRLs until q.Limit statements are gathered or
// the LRS has nothing left. A non-positive limit collects every page.
func (c *Client) CollectStatements(ctx context.Context, q xapi.StatementQuery) (xapi.StatementResult, error) {
	result, err := c.QueryStatements(ctx, q)
	if err != nil {
		return xapi.StatementResult{}, err
	}
	result = xapi.Merge(xapi.StatementResult{}, result, q.Limit)
	for result.HasMore() && (q.Limit <= 0 || len(result.Statements) < q.Limit) {
		next, err := c.MoreStatements(ctx, result.More)
		if err != nil {
			return result, err
		}
		result = xapi.Merge(result, next, q.Limit)
	}
	return result, nil
}

// VoidStatement records that actor voids the statement with targetID.
func (c *Client) VoidStatement(ctx context.Context, actor xapi.Actor, targetID string) (xapi.StoredStatement, error) {
	return c.SendStatement(ctx, xapi.NewVoidingStatement(actor, targetID))
}

package xapisdk

import (
	"context"
	"encoding/json"
	"net/http"

	"xapikit/xapi"
)

// Document is a state or profile document.
type Document struct {
	ID          string
	ContentType string
	Content     []byte
	ETag        string
}

func documentFrom(id string, resp response) Document {
	return Document{
		ID:          id,
		ContentType: resp.header.Get("Content-Type"),
		Content:     resp.body,
		ETag:        resp.header.Get("ETag"),
	}
}

func (c *Client) getDocument(ctx context.Context, resource, query, id string) (Document, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, url: c.Endpoint.Resolve(resource, query)})
	if err != nil {
		return Document{}, err
	}
	return documentFrom(id, resp), nil
}

func (c *Client) listDocumentIDs(ctx context.Context, resource, query string) ([]string, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, url: c.Endpoint.Resolve(resource, query)})
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := decodeJSON(resp.body, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) putDocument(ctx context.Context, resource, query string, doc Document) error {
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
		if json.Valid(doc.Content) {
			contentType = "application/json"
		}
	}
	r := request{method: http.MethodPut, url: c.Endpoint.Resolve(resource, query), body: doc.Content, contentType: contentType}
	if doc.ETag != "" {
		r.header = map[string]string{"If-Match": doc.ETag}
	}
	_, err := c.do(ctx, r)
	return err
}

func (c *Client) deleteDocument(ctx context.Context, resource, query string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, url: c.Endpoint.Resolve(resource, query)})
	return err
}

// GetState fetches the state document named by q.StateID.
func (c *Client) GetState(ctx context.Context, q xapi.StateQuery) (Document, error) {
	if q.StateID == "" {
		return Document{}, &xapi.MissingParameterError{Query: "state query", Parameter: "stateId"}
	}
	query, err := q.BuildQueryString()
	if err != nil {
		return Document{}, err
	}
	return c.getDocument(ctx, xapi.StatePath, query, q.StateID)
}

// ListStateIDs lists the state documents stored for the activity and agent of q.
func (c *Client) ListStateIDs(ctx context.Context, q xapi.StateQuery) ([]string, error) {
	q.StateID = ""
	query, err := q.BuildQueryString()
	if err != nil {
		return nil, err
	}
	return c.listDocumentIDs(ctx, xapi.StatePath, query)
}

// PutState stores doc under q.StateID.
func (c *Client) PutState(ctx context.Context, q xapi.StateQuery, doc Document) error {
	if q.StateID == "" {
		return &xapi.MissingParameterError{Query: "state query", Parameter: "stateId"}
	}
	query, err := q.BuildQueryString()
	if err != nil {
		return err
	}
	return c.putDocument(ctx, xapi.StatePath, query, doc)
}

// DeleteState deletes one state document, or all of them when q.StateID is empty.
func (c *Client) DeleteState(ctx context.Context, q xapi.StateQuery) error {
	query, err := q.BuildQueryString()
	if err != nil {
		return err
	}
	return c.deleteDocument(ctx, xapi.StatePath, query)
}

// GetAgentProfile fetches the agent profile named by q.ProfileID.
func (c *Client) GetAgentProfile(ctx context.Context, q xapi.AgentProfileQuery) (Document, error) {
	if q.ProfileID == "" {
		return Document{}, &xapi.MissingParameterError{Query: "agent profile query", Parameter: "profileId"}
	}
	query, err := q.BuildQueryString()
	if err != nil {
		return Document{}, err
	}
	return c.getDocument(ctx, xapi.AgentProfilePath, query, q.ProfileID)
}

// ListAgentProfileIDs lists the profile documents stored for the agent of q.
func (c *Client) ListAgentProfileIDs(ctx context.Context, q xapi.AgentProfileQuery) ([]string, error) {
	q.ProfileID = ""
	query, err := q.BuildQueryString()
	if err != nil {
		return nil, err
	}
	return c.listDocumentIDs(ctx, xapi.AgentProfilePath, query)
}

// PutAgentProfile stores doc under q.ProfileID.
func (c *Client) PutAgentProfile(ctx context.Context, q xapi.AgentProfileQuery, doc Document) error {
	if q.ProfileID == "" {
		return &xapi.MissingParameterError{Query: "agent profile query", Parameter: "profileId"}
	}
	query, err := q.BuildQueryString()
	if err != nil {
		return err
	}
	return c.putDocument(ctx, xapi.AgentProfilePath, query, doc)
}

// DeleteAgentProfile deletes the agent profile named by q.ProfileID.
func (c *Client) DeleteAgentProfile(ctx context.Context, q xapi.AgentProfileQuery) error {
	if q.ProfileID == "" {
		return &xapi.MissingParameterError{Query: "agent profile query", Parameter: "profileId"}
	}
	query, err := q.BuildQueryString()
	if err != nil {
		return err
	}
	return c.deleteDocument(ctx, xapi.AgentProfilePath, query)
}

// GetActivityProfile fetches the activity profile named by q.ProfileID.
func (c *Client) GetActivityProfile(ctx context.Context, q xapi.ActivityProfileQuery) (Document, error) {
	if q.ProfileID == "" {
		return Document{}, &xapi.MissingParameterError{Query: "activity profile query", Parameter: "profileId"}
	}
	query, err := q.BuildQueryString()
	if err != nil {
		return Document{}, err
	}
	return c.getDocument(ctx, xapi.ActivityProfilePath, query, q.ProfileID)
}

// ListActivityProfileIDs lists the profile documents stored for the activity of q.
func (c *Client) ListActivityProfileIDs(ctx context.Context, q xapi.ActivityProfileQuery) ([]string, error) {
	q.ProfileID = ""
	query, err := q.BuildQueryString()
	if err != nil {
		return nil, err
	}
	return c.listDocumentIDs(ctx, xapi.ActivityProfilePath, query)
}

// PutActivityProfile stores doc under q.ProfileID.
func (c *Client) PutActivityProfile(ctx context.Context, q xapi.ActivityProfileQuery, doc Document) error {
	if q.ProfileID == "" {
		return &xapi.MissingParameterError{Query: "activity profile query", Parameter: "profileId"}
	}
	query, err := q.BuildQueryString()
	if err != nil {
		return err
	}
	return c.putDocument(ctx, xapi.ActivityProfilePath, query, doc)
}

// DeleteActivityProfile deletes the activity profile named by q.ProfileID.
func (c *Client) DeleteActivityProfile(ctx context.Context, q xapi.ActivityProfileQuery) error {
	if q.ProfileID == "" {
		return &xapi.MissingParameterError{Query: "activity profile query", Parameter: "profileId"}
	}
	query, err := q.BuildQueryString()
	if err != nil {
		return err
	}
	return c.deleteDocument(ctx, xapi.ActivityProfilePath, query)
}

// GetActivity fetches the full definition of an activity. Results are cached.
func (c *Client) GetActivity(ctx context.Context, activityID string) (xapi.Activity, error) {
	cacheKey := "activity:" + activityID
	if x, found := c.cacheGet(cacheKey); found {
		if a, ok := x.(xapi.Activity); ok {
			return a, nil
		}
	}
	query, err := xapi.ActivityQuery{ActivityID: activityID}.BuildQueryString()
	if err != nil {
		return xapi.Activity{}, err
	}
	resp, err := c.do(ctx, request{method: http.MethodGet, url: c.Endpoint.Resolve(xapi.ActivitiesPath, query)})
	if err != nil {
		return xapi.Activity{}, err
	}
	var a xapi.Activity
	if err := decodeJSON(resp.body, &a); err != nil {
		return xapi.Activity{}, err
	}
	if a.ID == "" {
		return xapi.Activity{}, &xapi.MalformedResponseError{Reason: "activity has no id"}
	}
	c.cacheSet(cacheKey, a)
	return a, nil
}

// GetPerson fetches the combined Person view of an agent.
func (c *Client) GetPerson(ctx context.Context, agent xapi.Actor) (xapi.Person, error) {
	query, err := xapi.AgentQuery{Agent: &agent}.BuildQueryString()
	if err != nil {
		return xapi.Person{}, err
	}
	resp, err := c.do(ctx, request{method: http.MethodGet, url: c.Endpoint.Resolve(xapi.AgentsPath, query)})
	if err != nil {
		return xapi.Person{}, err
	}
	var p xapi.Person
	if err := decodeJSON(resp.body, &p); err != nil {
		return xapi.Person{}, err
	}
	if p.ObjectType != "Person" {
		return xapi.Person{}, &xapi.MalformedResponseError{Reason: "agents resource did not return a Person"}
	}
	return p, nil
}

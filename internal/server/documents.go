package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"xapikit/internal/store"
	"xapikit/xapi"
)

type docResource struct {
	kind    store.DocumentKind
	path    string
	op      string
	idParam string
}

var docResources = []docResource{
	{kind: store.StateDocument, path: "/" + xapi.StatePath, op: "state", idParam: "stateId"},
	{kind: store.AgentProfileDocument, path: "/" + xapi.AgentProfilePath, op: "agent-profile", idParam: "profileId"},
	{kind: store.ActivityProfileDocument, path: "/" + xapi.ActivityProfilePath, op: "activity-profile", idParam: "profileId"},
}

type docInput struct {
	ActivityID   string `query:"activityId"`
	Agent        string `query:"agent"`
	Registration string `query:"registration"`
	StateID      string `query:"stateId"`
	ProfileID    string `query:"profileId"`
	Since        string `query:"since"`
	ContentType  string `header:"Content-Type"`
	IfMatch      string `header:"If-Match"`
}

type rawDocument struct {
	ContentType  string `header:"Content-Type"`
	ETag         string `header:"ETag"`
	LastModified string `header:"Last-Modified"`
	Body         []byte
}

func (s *lrs) check(value, tag, param string) error {
	if err := s.validate.Var(value, tag); err != nil {
		return badRequest(param+" is missing or invalid", map[string]any{"parameter": param, "rule": tag})
	}
	return nil
}

// keyFor validates the parameters the resource requires and builds the key.
func (s *lrs) keyFor(res docResource, in *docInput) (store.DocumentKey, error) {
	key := store.DocumentKey{Kind: res.kind}
	if res.kind != store.AgentProfileDocument {
		if err := s.check(in.ActivityID, "required,url", "activityId"); err != nil {
			return key, err
		}
		key.ActivityID = in.ActivityID
	}
	if res.kind != store.ActivityProfileDocument {
		if err := s.check(in.Agent, "required,json", "agent"); err != nil {
			return key, err
		}
		ifi, err := agentIdentifier(in.Agent)
		if err != nil {
			return key, err
		}
		key.Agent = ifi
	}
	if res.kind == store.StateDocument {
		if err := s.check(in.Registration, "omitempty,uuid", "registration"); err != nil {
			return key, err
		}
		key.Registration = in.Registration
		key.DocID = in.StateID
	} else {
		key.DocID = in.ProfileID
	}
	return key, nil
}

func docError(err error) huma.StatusError {
	if errors.Is(err, store.ErrConflict) {
		return newAPIError(http.StatusPreconditionFailed, "precondition_failed", "If-Match does not match the current document", nil)
	}
	return handleError(err)
}

func (s *lrs) registerDocuments(api huma.API) {
	for _, res := range docResources {
		res := res
		huma.Register(api, huma.Operation{
			OperationID: "get-" + res.op,
			Method:      http.MethodGet,
			Path:        res.path,
			Summary:     "Fetch a document, or list document ids when " + res.idParam + " is omitted",
			Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
		}, func(ctx context.Context, in *docInput) (*rawDocument, error) {
			key, err := s.keyFor(res, in)
			if err != nil {
				return nil, handleError(err)
			}
			if key.DocID == "" {
				since, err := parseSince(in.Since)
				if err != nil {
					return nil, err
				}
				ids, err := s.store.ListDocumentIDs(ctx, key, since)
				if err != nil {
					return nil, handleError(err)
				}
				body, _ := json.Marshal(ids)
				return &rawDocument{ContentType: "application/json", Body: body}, nil
			}
			doc, err := s.store.GetDocument(ctx, key)
			if err != nil {
				return nil, handleError(err)
			}
			return &rawDocument{ContentType: doc.ContentType, ETag: doc.ETag, LastModified: doc.Updated, Body: doc.Content}, nil
		})

		huma.Register(api, huma.Operation{
			OperationID:   "put-" + res.op,
			Method:        http.MethodPut,
			Path:          res.path,
			Summary:       "Store a document, replacing any existing content",
			DefaultStatus: http.StatusNoContent,
			Errors:        []int{http.StatusBadRequest, http.StatusPreconditionFailed},
		}, func(ctx context.Context, in *docInput) (*struct{}, error) {
			key, err := s.keyFor(res, in)
			if err != nil {
				return nil, handleError(err)
			}
			if key.DocID == "" {
				return nil, badRequest(res.idParam+" is required", nil)
			}
			if _, err := s.store.PutDocument(ctx, store.Document{Key: key, ContentType: contentType(in.ContentType), Content: bodyBytes(ctx)}, in.IfMatch); err != nil {
				return nil, docError(err)
			}
			s.metrics.documents.WithLabelValues(string(res.kind)).Inc()
			return &struct{}{}, nil
		})

		huma.Register(api, huma.Operation{
			OperationID:   "post-" + res.op,
			Method:        http.MethodPost,
			Path:          res.path,
			Summary:       "Merge a JSON object into a document",
			DefaultStatus: http.StatusNoContent,
			Errors:        []int{http.StatusBadRequest, http.StatusPreconditionFailed},
		}, func(ctx context.Context, in *docInput) (*struct{}, error) {
			key, err := s.keyFor(res, in)
			if err != nil {
				return nil, handleError(err)
			}
			if key.DocID == "" {
				return nil, badRequest(res.idParam+" is required", nil)
			}
			content := bodyBytes(ctx)
			current, err := s.store.GetDocument(ctx, key)
			switch {
			case errors.Is(err, store.ErrNotFound):
				if content, err = mergeJSON([]byte("{}"), content); err != nil {
					return nil, err
				}
			case err != nil:
				return nil, handleError(err)
			default:
				if content, err = mergeJSON(current.Content, content); err != nil {
					return nil, err
				}
			}
			if _, err := s.store.PutDocument(ctx, store.Document{Key: key, ContentType: "application/json", Content: content}, in.IfMatch); err != nil {
				return nil, docError(err)
			}
			s.metrics.documents.WithLabelValues(string(res.kind)).Inc()
			return &struct{}{}, nil
		})

		huma.Register(api, huma.Operation{
			OperationID:   "delete-" + res.op,
			Method:        http.MethodDelete,
			Path:          res.path,
			Summary:       "Delete a document",
			DefaultStatus: http.StatusNoContent,
			Errors:        []int{http.StatusBadRequest},
		}, func(ctx context.Context, in *docInput) (*struct{}, error) {
			key, err := s.keyFor(res, in)
			if err != nil {
				return nil, handleError(err)
			}
			if key.DocID == "" && res.kind != store.StateDocument {
				return nil, badRequest(res.idParam+" is required", nil)
			}
			if err := s.store.DeleteDocument(ctx, key); err != nil {
				return nil, handleError(err)
			}
			return &struct{}{}, nil
		})
	}
}

func (s *lrs) registerActivities(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/" + xapi.ActivitiesPath,
		Summary:     "Latest known definition of an activity",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, in *struct {
		ActivityID string `query:"activityId"`
	}) (*rawDocument, error) {
		if err := s.check(in.ActivityID, "required,url", "activityId"); err != nil {
			return nil, err
		}
		a, err := s.store.LatestActivity(ctx, in.ActivityID)
		if errors.Is(err, store.ErrNotFound) {
			a, err = xapi.NewActivity(in.ActivityID), nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		body, err := json.Marshal(a)
		if err != nil {
			return nil, handleError(err)
		}
		return &rawDocument{ContentType: "application/json", Body: body}, nil
	})
}

func (s *lrs) registerAgents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-person",
		Method:      http.MethodGet,
		Path:        "/" + xapi.AgentsPath,
		Summary:     "Person view of an agent",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, in *struct {
		Agent string `query:"agent"`
	}) (*struct {
		Body xapi.Person `json:"body"`
	}, error) {
		if err := s.check(in.Agent, "required,json", "agent"); err != nil {
			return nil, err
		}
		var a xapi.Actor
		if err := json.Unmarshal([]byte(in.Agent), &a); err != nil {
			return nil, badRequest("agent is not valid agent JSON", nil)
		}
		return &struct {
			Body xapi.Person `json:"body"`
		}{Body: xapi.PersonFor(a)}, nil
	})
}

func parseSince(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := xapi.ParseTimestamp(raw)
	if err != nil {
		return nil, badRequest("since is not a timestamp", map[string]any{"since": raw})
	}
	return &t, nil
}

func contentType(header string) string {
	if header = strings.TrimSpace(header); header != "" {
		return header
	}
	return "application/octet-stream"
}

// mergeJSON merges the top-level keys of update into current. Both must be
// JSON objects.
func mergeJSON(current, update []byte) ([]byte, error) {
	var base, patch map[string]json.RawMessage
	if err := json.Unmarshal(current, &base); err != nil {
		return nil, badRequest("existing document is not a JSON object", nil)
	}
	if err := json.Unmarshal(update, &patch); err != nil {
		return nil, badRequest("body is not a JSON object", nil)
	}
	if base == nil {
		base = map[string]json.RawMessage{}
	}
	for k, v := range patch {
		base[k] = v
	}
	return json.Marshal(base)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"xapikit/internal/store"
	"xapikit/xapi"
)

// rawJSON is a pre-rendered JSON response.
type rawJSON struct {
	ContentType       string `header:"Content-Type"`
	ConsistentThrough string `header:"X-Experience-API-Consistent-Through"`
	Body              []byte
}

type moreState struct {
	filter store.StatementFilter
	cursor int64
	limit  int
}

func compileStatementSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(xapi.StatementSchemaURL, bytes.NewReader(xapi.StatementSchema)); err != nil {
		return nil, fmt.Errorf("load statement schema: %w", err)
	}
	schema, err := compiler.Compile(xapi.StatementSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile statement schema: %w", err)
	}
	return schema, nil
}

// decodeStatement checks raw against the schema and decodes it.
func (s *lrs) decodeStatement(raw json.RawMessage) (xapi.Statement, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return xapi.Statement{}, badRequest("body is not valid JSON", nil)
	}
	if err := s.schema.Validate(doc); err != nil {
		return xapi.Statement{}, err
	}
	st, err := xapi.UnmarshalStatement(raw)
	if err != nil {
		return xapi.Statement{}, err
	}
	if err := st.Validate(); err != nil {
		return xapi.Statement{}, badRequest(err.Error(), nil)
	}
	return st, nil
}

// decodeStatements accepts a single statement or an array of them.
func (s *lrs) decodeStatements(body []byte) ([]xapi.Statement, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, badRequest("body required", nil)
	}
	var raws []json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, badRequest("body is not a statement array", nil)
		}
		if len(raws) == 0 {
			return nil, badRequest("statement array is empty", nil)
		}
	} else {
		raws = []json.RawMessage{body}
	}
	out := make([]xapi.Statement, 0, len(raws))
	for i, raw := range raws {
		st, err := s.decodeStatement(raw)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// prepare fills the LRS-assigned properties.
func (s *lrs) prepare(ctx context.Context, st xapi.Statement) xapi.Statement {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.Stored = s.timestamp()
	if st.Timestamp == "" {
		st.Timestamp = st.Stored
	}
	if st.Version == "" {
		st.Version = xapi.Version
	}
	if p, ok := principalFromContext(ctx); ok {
		st = st.WithAuthority(p.Authority())
	}
	return st
}

func (s *lrs) storeStatements(ctx context.Context, statements []xapi.Statement) ([]string, error) {
	seen := map[string]bool{}
	for i := range statements {
		statements[i] = s.prepare(ctx, statements[i])
		if seen[statements[i].ID] {
			return nil, badRequest("duplicate statement id in batch", map[string]any{"id": statements[i].ID})
		}
		seen[statements[i].ID] = true
	}
	if err := s.store.InsertStatements(ctx, statements); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(statements))
	for _, st := range statements {
		ids = append(ids, st.ID)
	}
	s.metrics.statements.Add(float64(len(ids)))
	s.log.Debug().Int("count", len(ids)).Msg("statements stored")
	return ids, nil
}

func (s *lrs) registerStatements(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "post-statements",
		Method:      http.MethodPost,
		Path:        "/statements",
		Summary:     "Store one statement or a batch",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string `json:"body"`
	}, error) {
		statements, err := s.decodeStatements(bodyBytes(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		ids, err := s.storeStatements(ctx, statements)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "put-statement",
		Method:        http.MethodPut,
		Path:          "/statements",
		Summary:       "Store a statement under a client-chosen id",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		StatementID string `query:"statementId"`
	}) (*struct{}, error) {
		if input.StatementID == "" {
			return nil, badRequest("statementId is required", nil)
		}
		if _, err := uuid.Parse(input.StatementID); err != nil {
			return nil, badRequest("statementId is not a UUID", map[string]any{"statementId": input.StatementID})
		}
		body := bytes.TrimSpace(bodyBytes(ctx))
		if len(body) == 0 || body[0] != '{' {
			return nil, badRequest("body must be a single statement", nil)
		}
		st, err := s.decodeStatement(body)
		if err != nil {
			return nil, handleError(err)
		}
		if st.ID != "" && st.ID != input.StatementID {
			return nil, badRequest("statement id does not match statementId", nil)
		}
		st.ID = input.StatementID
		if _, err := s.storeStatements(ctx, []xapi.Statement{st}); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-statements",
		Method:      http.MethodGet,
		Path:        "/statements",
		Summary:     "Fetch a statement or query statements",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*rawJSON, error) {
		values := url.Values{}
		if req := requestFrom(ctx); req != nil {
			values = req.URL.Query()
		}
		out, err := s.getStatements(ctx, values)
		if err != nil {
			return nil, handleError(err)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "more-statements",
		Method:      http.MethodGet,
		Path:        "/statements/more/{token}",
		Summary:     "Next page of a statement query",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Token string `path:"token"`
	}) (*rawJSON, error) {
		x, found := s.more.Get(input.Token)
		if !found {
			return nil, newAPIError(http.StatusNotFound, "not_found", "more token expired or unknown", nil)
		}
		s.more.Delete(input.Token)
		state := x.(moreState)
		out, err := s.page(ctx, state.filter, state.cursor, state.limit)
		if err != nil {
			return nil, handleError(err)
		}
		return out, nil
	})
}

var exclusiveParams = []string{"verbId", "activityId", "registration", "registrationId", "agent", "since", "until", "related_agents", "related_activities"}

func (s *lrs) getStatements(ctx context.Context, values url.Values) (*rawJSON, error) {
	q, err := xapi.ParseStatementQuery(values)
	if err != nil {
		return nil, badRequest(err.Error(), nil)
	}
	if q.StatementID != "" || q.VoidedStatementID != "" {
		if q.StatementID != "" && q.VoidedStatementID != "" {
			return nil, badRequest("statementId and voidedStatementId are exclusive", nil)
		}
		for _, p := range exclusiveParams {
			if values.Get(p) != "" {
				return nil, badRequest("statementId and voidedStatementId exclude other filters", map[string]any{"parameter": p})
			}
		}
		id, voided := q.StatementID, false
		if id == "" {
			id, voided = q.VoidedStatementID, true
		}
		st, err := s.store.GetStatement(ctx, id, voided)
		if err != nil {
			return nil, err
		}
		body, err := xapi.MarshalStatement(st)
		if err != nil {
			return nil, err
		}
		return s.jsonOutput(body), nil
	}

	filter := store.StatementFilter{
		VerbID:         q.VerbID,
		ActivityID:     q.ActivityID,
		RegistrationID: q.RegistrationID,
		Since:          q.Since,
		Until:          q.Until,
	}
	if filter.RegistrationID == "" {
		filter.RegistrationID = values.Get("registration")
	}
	if q.RelatedActivities != nil {
		filter.RelatedActivities = *q.RelatedActivities
	}
	if q.RelatedAgents != nil {
		filter.RelatedAgents = *q.RelatedAgents
	}
	if raw := values.Get("agent"); raw != "" {
		ifi, err := agentIdentifier(raw)
		if err != nil {
			return nil, err
		}
		filter.Agent = ifi
	}
	limit := s.pageSize
	if values.Get("limit") != "" && q.Limit > 0 && q.Limit < limit {
		limit = q.Limit
	}
	return s.page(ctx, filter, 0, limit)
}

func (s *lrs) page(ctx context.Context, filter store.StatementFilter, cursor int64, limit int) (*rawJSON, error) {
	page, err := s.store.QueryStatements(ctx, filter, cursor, limit)
	if err != nil {
		return nil, err
	}
	result := xapi.StatementResult{Statements: page.Statements}
	if page.More {
		token := uuid.NewString()
		s.more.Set(token, moreState{filter: filter, cursor: page.Cursor, limit: limit}, s.moreTTL)
		result.More = path.Join(s.basePath, xapi.StatementsPath, "more", token)
	}
	body, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return s.jsonOutput(body), nil
}

func (s *lrs) jsonOutput(body []byte) *rawJSON {
	return &rawJSON{ContentType: "application/json", ConsistentThrough: s.timestamp(), Body: body}
}

// agentIdentifier decodes an agent JSON parameter into its identifier.
func agentIdentifier(raw string) (string, error) {
	var a xapi.Actor
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return "", badRequest("agent is not valid agent JSON", map[string]any{"agent": raw})
	}
	if err := a.Validate(); err != nil {
		return "", badRequest("agent: "+err.Error(), nil)
	}
	id := a.Identifier()
	if id == "" {
		return "", badRequest("agent has no identifier", nil)
	}
	return id, nil
}

package xapi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultQueryLimit caps merged pages when a query does not set Limit.
const DefaultQueryLimit = 25

// StatementQuery filters GET /statements. StatementID and VoidedStatementID
// each exclude every other filter.
type StatementQuery struct {
	StatementID       string
	VoidedStatementID string
	VerbID            string
	ActivityID        string
	RegistrationID    string
	RelatedAgents     *bool
	RelatedActivities *bool
	Since             *time.Time
	Until             *time.Time

	// Limit bounds the statements collected across pages. It is not sent.
	Limit int
}

// NewStatementQuery returns a query with the default limit.
func NewStatementQuery() StatementQuery {
	return StatementQuery{Limit: DefaultQueryLimit}
}

type queryParams struct {
	b strings.Builder
}

func (p *queryParams) add(key, value string) {
	if value == "" {
		return
	}
	if p.b.Len() > 0 {
		p.b.WriteByte('&')
	}
	p.b.WriteString(key)
	p.b.WriteByte('=')
	p.b.WriteString(url.QueryEscape(value))
}

func (p *queryParams) addBool(key string, v *bool) {
	if v != nil {
		p.add(key, strconv.FormatBool(*v))
	}
}

func (p *queryParams) addTime(key string, t *time.Time) {
	if t != nil {
		p.add(key, FormatTimestamp(*t))
	}
}

func (p *queryParams) String() string { return p.b.String() }

// BuildQueryString renders the query starting with "?format=exact".
func (q StatementQuery) BuildQueryString() string {
	var p queryParams
	p.add("format", "exact")
	switch {
	case q.StatementID != "":
		p.add("statementId", q.StatementID)
	case q.VoidedStatementID != "":
		p.add("voidedStatementId", q.VoidedStatementID)
	default:
		p.addBool("related_agents", q.RelatedAgents)
		p.addBool("related_activities", q.RelatedActivities)
		p.addTime("since", q.Since)
		p.addTime("until", q.Until)
		p.add("verbId", q.VerbID)
		p.add("activityId", q.ActivityID)
		p.add("registrationId", q.RegistrationID)
	}
	return "?" + p.String()
}

// ParseStatementQuery reads a query string produced by BuildQueryString.
func ParseStatementQuery(values url.Values) (StatementQuery, error) {
	q := NewStatementQuery()
	q.StatementID = values.Get("statementId")
	q.VoidedStatementID = values.Get("voidedStatementId")
	q.VerbID = values.Get("verbId")
	q.ActivityID = values.Get("activityId")
	q.RegistrationID = values.Get("registrationId")
	for key, dst := range map[string]**bool{
		"related_agents":     &q.RelatedAgents,
		"related_activities": &q.RelatedActivities,
	} {
		if raw := values.Get(key); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return StatementQuery{}, fmt.Errorf("invalid %s %q", key, raw)
			}
			*dst = &v
		}
	}
	for key, dst := range map[string]**time.Time{
		"since": &q.Since,
		"until": &q.Until,
	} {
		if raw := values.Get(key); raw != "" {
			t, err := ParseTimestamp(raw)
			if err != nil {
				return StatementQuery{}, fmt.Errorf("invalid %s %q", key, raw)
			}
			*dst = &t
		}
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return StatementQuery{}, fmt.Errorf("invalid limit %q", raw)
		}
		q.Limit = n
	}
	return q, nil
}

// escapeData escapes like RFC 3986 data: spaces become %20.
func escapeData(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

type resourceParams struct {
	parts []string
}

func (p *resourceParams) add(key, value string) {
	if value != "" {
		p.parts = append(p.parts, key+"="+escapeData(value))
	}
}

func (p *resourceParams) addAgent(a *Actor) error {
	if a == nil {
		return nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	p.add("agent", string(raw))
	return nil
}

func (p *resourceParams) String() string {
	if len(p.parts) == 0 {
		return ""
	}
	return "?" + strings.Join(p.parts, "&")
}

// StateQuery addresses documents in the activities/state resource.
type StateQuery struct {
	ActivityID   string
	Agent        *Actor
	Registration string
	StateID      string
	Since        *time.Time
}

// BuildQueryString renders the query. ActivityID and Agent are required.
func (q StateQuery) BuildQueryString() (string, error) {
	if q.ActivityID == "" {
		return "", &MissingParameterError{Query: "state query", Parameter: "activityId"}
	}
	if q.Agent == nil {
		return "", &MissingParameterError{Query: "state query", Parameter: "agent"}
	}
	var p resourceParams
	p.add("activityId", q.ActivityID)
	p.add("registration", q.Registration)
	if err := p.addAgent(q.Agent); err != nil {
		return "", err
	}
	p.add("stateId", q.StateID)
	if q.Since != nil {
		p.add("since", FormatTimestamp(*q.Since))
	}
	return p.String(), nil
}

// AgentQuery addresses the agents resource.
type AgentQuery struct {
	Agent *Actor
}

// BuildQueryString renders the query. Agent is required.
func (q AgentQuery) BuildQueryString() (string, error) {
	if q.Agent == nil {
		return "", &MissingParameterError{Query: "agent query", Parameter: "agent"}
	}
	var p resourceParams
	if err := p.addAgent(q.Agent); err != nil {
		return "", err
	}
	return p.String(), nil
}

// AgentProfileQuery addresses documents in the agents/profile resource.
type AgentProfileQuery struct {
	Agent     *Actor
	ProfileID string
	Since     *time.Time
}

// BuildQueryString renders the query. Agent is required.
func (q AgentProfileQuery) BuildQueryString() (string, error) {
	if q.Agent == nil {
		return "", &MissingParameterError{Query: "agent profile query", Parameter: "agent"}
	}
	var p resourceParams
	if err := p.addAgent(q.Agent); err != nil {
		return "", err
	}
	p.add("profileId", q.ProfileID)
	if q.Since != nil {
		p.add("since", FormatTimestamp(*q.Since))
	}
	return p.String(), nil
}

// ActivityQuery addresses the activities resource.
type ActivityQuery struct {
	ActivityID string
}

// BuildQueryString renders the query. ActivityID is required.
func (q ActivityQuery) BuildQueryString() (string, error) {
	if q.ActivityID == "" {
		return "", &MissingParameterError{Query: "activity query", Parameter: "activityId"}
	}
	var p resourceParams
	p.add("activityId", q.ActivityID)
	return p.String(), nil
}

// ActivityProfileQuery addresses documents in the activities/profile resource.
type ActivityProfileQuery struct {
	ActivityID string
	ProfileID  string
	Since      *time.Time
}

// BuildQueryString renders the query. ActivityID is required.
func (q ActivityProfileQuery) BuildQueryString() (string, error) {
	if q.ActivityID == "" {
		return "", &MissingParameterError{Query: "activity profile query", Parameter: "activityId"}
	}
	var p resourceParams
	p.add("activityId", q.ActivityID)
	p.add("profileId", q.ProfileID)
	if q.Since != nil {
		p.add("since", FormatTimestamp(*q.Since))
	}
	return p.String(), nil
}

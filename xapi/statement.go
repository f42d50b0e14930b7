package xapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version is the xAPI protocol version this package speaks.
const Version = "1.0.0"

// Statement is an actor-verb-object record. A statement flagged as a
// sub-statement never serializes id, stored, authority or version.
type Statement struct {
	ID        string
	Actor     Actor
	Verb      Verb
	Object    Object
	Result    *Result
	Context   *Context
	Timestamp string
	Stored    string
	Authority *Actor
	Version   string

	IsSubStatement bool
}

// NewStatement returns a statement stamped with the current time and protocol version.
func NewStatement(actor Actor, verb Verb, object Object) Statement {
	return Statement{
		Actor:     actor,
		Verb:      verb,
		Object:    object,
		Timestamp: FormatTimestamp(time.Now()),
		Version:   Version,
	}
}

// NewSubStatement returns a statement for use as the object of another statement.
func NewSubStatement(actor Actor, verb Verb, object Object) Statement {
	return Statement{
		Actor:          actor,
		Verb:           verb,
		Object:         object,
		Timestamp:      FormatTimestamp(time.Now()),
		IsSubStatement: true,
	}
}

// NewVoidingStatement returns a statement that voids the statement with targetID.
func NewVoidingStatement(actor Actor, targetID string) Statement {
	return NewStatement(actor, VoidedVerb(), StatementRef{ID: targetID})
}

// ObjectType is "SubStatement" for sub-statements and empty otherwise.
func (s Statement) ObjectType() string {
	if s.IsSubStatement {
		return subStatementObjectType
	}
	return ""
}

func (Statement) isObject() {}

// AsSubStatement returns a copy flagged as a sub-statement.
func (s Statement) AsSubStatement() Statement {
	s.IsSubStatement = true
	return s
}

// WithID returns a copy with the statement ID set.
func (s Statement) WithID(id string) Statement {
	s.ID = id
	return s
}

// WithResult returns a copy with the result set.
func (s Statement) WithResult(r Result) Statement {
	c := r.clone()
	s.Result = &c
	return s
}

// WithContext returns a copy with the context set.
func (s Statement) WithContext(c Context) Statement {
	s.Context = c.clone()
	return s
}

// WithAuthority returns a copy with the authority set.
func (s Statement) WithAuthority(a Actor) Statement {
	c := a.clone()
	s.Authority = &c
	return s
}

// WithTimestamp returns a copy with the timestamp set from t.
func (s Statement) WithTimestamp(t time.Time) Statement {
	s.Timestamp = FormatTimestamp(t)
	return s
}

// IsVoiding reports whether s voids another statement.
func (s Statement) IsVoiding() bool {
	if s.Verb.ID() != VoidedVerbID {
		return false
	}
	_, ok := VoidedTarget(s)
	return ok
}

// VoidedTarget returns the ID referenced by a StatementRef object.
func VoidedTarget(s Statement) (string, bool) {
	switch ref := s.Object.(type) {
	case StatementRef:
		return ref.ID, ref.ID != ""
	case *StatementRef:
		return ref.ID, ref != nil && ref.ID != ""
	}
	return "", false
}

// Validate reports missing parts, empty actor identifiers, malformed UUIDs
// and nested sub-statements.
func (s Statement) Validate() error {
	if err := s.Actor.Validate(); err != nil {
		return fmt.Errorf("actor: %w", err)
	}
	if s.Verb.IsZero() {
		return errors.New("verb id is required")
	}
	if s.Object == nil {
		return errors.New("object is required")
	}
	if !s.IsSubStatement && s.ID != "" {
		if _, err := uuid.Parse(s.ID); err != nil {
			return fmt.Errorf("statement id %q is not a UUID", s.ID)
		}
	}
	if s.Authority != nil && !s.IsSubStatement {
		if err := s.Authority.Validate(); err != nil {
			return fmt.Errorf("authority: %w", err)
		}
	}
	if s.Context != nil && s.Context.Registration != "" {
		if _, err := uuid.Parse(s.Context.Registration); err != nil {
			return fmt.Errorf("registration %q is not a UUID", s.Context.Registration)
		}
	}
	switch obj := s.Object.(type) {
	case Activity:
		if obj.ID == "" {
			return errors.New("activity id is required")
		}
	case StatementRef:
		if obj.ID == "" {
			return errors.New("statement reference id is required")
		}
	case Actor:
		if err := obj.Validate(); err != nil {
			return fmt.Errorf("object: %w", err)
		}
	case Statement:
		if s.IsSubStatement {
			return ErrNestedSubStatement
		}
		if err := obj.AsSubStatement().Validate(); err != nil {
			return fmt.Errorf("sub-statement: %w", err)
		}
	}
	return nil
}

type statementJSON struct {
	ID         string   `json:"id,omitempty"`
	ObjectType string   `json:"objectType,omitempty"`
	Actor      Actor    `json:"actor"`
	Verb       Verb     `json:"verb"`
	Object     Object   `json:"object"`
	Result     *Result  `json:"result,omitempty"`
	Context    *Context `json:"context,omitempty"`
	Timestamp  string   `json:"timestamp,omitempty"`
	Stored     string   `json:"stored,omitempty"`
	Authority  *Actor   `json:"authority,omitempty"`
	Version    string   `json:"version,omitempty"`
}

func (s Statement) MarshalJSON() ([]byte, error) {
	out := statementJSON{
		Actor:     s.Actor,
		Verb:      s.Verb,
		Object:    s.Object,
		Result:    s.Result,
		Timestamp: s.Timestamp,
	}
	if nested, ok := s.Object.(Statement); ok && !nested.IsSubStatement {
		out.Object = nested.AsSubStatement()
	}
	if !s.Context.IsEmpty() {
		out.Context = s.Context
	}
	if s.IsSubStatement {
		out.ObjectType = subStatementObjectType
	} else {
		out.ID = s.ID
		out.Stored = s.Stored
		out.Authority = s.Authority
		out.Version = s.Version
	}
	return json.Marshal(out)
}

func (s *Statement) UnmarshalJSON(data []byte) error {
	decoded, err := decodeStatement(data, false)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

type statementInJSON struct {
	ID         string          `json:"id"`
	ObjectType string          `json:"objectType"`
	Actor      json.RawMessage `json:"actor"`
	Verb       json.RawMessage `json:"verb"`
	Object     json.RawMessage `json:"object"`
	Result     *Result         `json:"result"`
	Context    *Context        `json:"context"`
	Timestamp  string          `json:"timestamp"`
	Stored     string          `json:"stored"`
	Authority  *Actor          `json:"authority"`
	Version    string          `json:"version"`
}

func decodeStatement(data []byte, sub bool) (Statement, error) {
	var in statementInJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return Statement{}, err
	}
	if isAbsent(in.Actor) {
		return Statement{}, errors.New("statement has no actor")
	}
	if isAbsent(in.Verb) {
		return Statement{}, errors.New("statement has no verb")
	}
	if isAbsent(in.Object) {
		return Statement{}, errors.New("statement has no object")
	}
	s := Statement{
		Result:         in.Result,
		Timestamp:      in.Timestamp,
		IsSubStatement: sub || in.ObjectType == subStatementObjectType,
	}
	if err := json.Unmarshal(in.Actor, &s.Actor); err != nil {
		return Statement{}, fmt.Errorf("actor: %w", err)
	}
	if err := json.Unmarshal(in.Verb, &s.Verb); err != nil {
		return Statement{}, fmt.Errorf("verb: %w", err)
	}
	obj, err := decodeObject(in.Object)
	if err != nil {
		return Statement{}, fmt.Errorf("object: %w", err)
	}
	s.Object = obj
	if !in.Context.IsEmpty() {
		s.Context = in.Context
	}
	if !s.IsSubStatement {
		s.ID = in.ID
		s.Stored = in.Stored
		s.Authority = in.Authority
		s.Version = in.Version
	}
	return s, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// MarshalStatement validates s and renders its xAPI JSON.
func MarshalStatement(s Statement) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// UnmarshalStatement decodes a statement returned by an LRS. Invalid JSON and
// statements missing actor, verb or object yield a *MalformedResponseError.
func UnmarshalStatement(data []byte) (Statement, error) {
	s, err := decodeStatement(data, false)
	if err != nil {
		return Statement{}, malformed("statement", err)
	}
	return s, nil
}

package xapi

import (
	"encoding/json"
	"fmt"
)

// Object is the target of a statement: an Activity, an Actor, a StatementRef
// or a sub-statement.
type Object interface {
	ObjectType() string
	isObject()
}

const (
	activityObjectType     = "Activity"
	statementRefObjectType = "StatementRef"
	subStatementObjectType = "SubStatement"
)

func decodeObject(raw json.RawMessage) (Object, error) {
	var probe struct {
		ObjectType string `json:"objectType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	switch probe.ObjectType {
	case "", activityObjectType:
		var a Activity
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return a, nil
	case string(AgentType), string(GroupType):
		var a Actor
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return a, nil
	case statementRefObjectType:
		var r StatementRef
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		return r, nil
	case subStatementObjectType:
		s, err := decodeStatement(raw, true)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown objectType %q", probe.ObjectType)
	}
}

// ObjectID returns the identifying IRI or UUID of o, or "" for actors and sub-statements.
func ObjectID(o Object) string {
	switch v := o.(type) {
	case Activity:
		return v.ID
	case *Activity:
		return v.ID
	case StatementRef:
		return v.ID
	case *StatementRef:
		return v.ID
	}
	return ""
}

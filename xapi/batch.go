package xapi

import (
	"encoding/json"
	"fmt"
)

// StoredStatement pairs a submitted statement with the ID the LRS assigned.
// ID is empty when the response could not be correlated.
type StoredStatement struct {
	Statement Statement
	ID        string
}

// BuildBatchPayload validates each statement and renders them as a JSON array.
func BuildBatchPayload(statements []Statement) ([]byte, error) {
	for i, s := range statements {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
	}
	if statements == nil {
		statements = []Statement{}
	}
	return json.Marshal(statements)
}

// CorrelateIDs pairs the i-th ID of a batch POST response with the i-th
// submitted statement. When the body is not a JSON string array or its length
// differs from the submission, every pair is returned with an empty ID along
// with a *MalformedResponseError or *BatchCardinalityError.
func CorrelateIDs(submitted []Statement, responseBody []byte) ([]StoredStatement, error) {
	var ids []string
	if err := json.Unmarshal(responseBody, &ids); err != nil {
		return unpaired(submitted), malformed("batch response is not a string array", err)
	}
	if len(ids) != len(submitted) {
		return unpaired(submitted), &BatchCardinalityError{Submitted: len(submitted), Returned: len(ids)}
	}
	out := make([]StoredStatement, len(submitted))
	for i, s := range submitted {
		s.ID = ids[i]
		out[i] = StoredStatement{Statement: s, ID: ids[i]}
	}
	return out, nil
}

func unpaired(submitted []Statement) []StoredStatement {
	out := make([]StoredStatement, len(submitted))
	for i, s := range submitted {
		out[i] = StoredStatement{Statement: s}
	}
	return out
}

package xapi

import "encoding/json"

// StatementResult is one page of a statement query. More is the IRL of the
// next page, empty when the query is exhausted.
type StatementResult struct {
	Statements []Statement `json:"statements"`
	More       string      `json:"more,omitempty"`
}

// HasMore reports whether another page can be fetched.
func (r StatementResult) HasMore() bool { return r.More != "" }

// Merge appends recent to original, keeps at most limit statements when limit
// is positive, and carries the more IRL of recent.
func Merge(original, recent StatementResult, limit int) StatementResult {
	statements := make([]Statement, 0, len(original.Statements)+len(recent.Statements))
	statements = append(statements, original.Statements...)
	statements = append(statements, recent.Statements...)
	if limit > 0 && len(statements) > limit {
		statements = statements[:limit]
	}
	return StatementResult{Statements: statements, More: recent.More}
}

func (r StatementResult) MarshalJSON() ([]byte, error) {
	statements := r.Statements
	if statements == nil {
		statements = []Statement{}
	}
	return json.Marshal(struct {
		Statements []Statement `json:"statements"`
		More       string      `json:"more,omitempty"`
	}{statements, r.More})
}

// UnmarshalStatementResult decodes a query response page.
func UnmarshalStatementResult(data []byte) (StatementResult, error) {
	var in struct {
		Statements []json.RawMessage `json:"statements"`
		More       string            `json:"more"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return StatementResult{}, malformed("statement result", err)
	}
	out := StatementResult{More: in.More, Statements: make([]Statement, 0, len(in.Statements))}
	for _, raw := range in.Statements {
		s, err := UnmarshalStatement(raw)
		if err != nil {
			return StatementResult{}, err
		}
		out.Statements = append(out.Statements, s)
	}
	return out, nil
}

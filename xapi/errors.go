package xapi

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentialSeparator is returned when a pre-encoded credential
	// decodes to text without the user:password separator.
	ErrMissingCredentialSeparator = errors.New("credential has no ':' separator")
	// ErrNestedSubStatement is returned when a sub-statement contains another sub-statement.
	ErrNestedSubStatement = errors.New("sub-statement cannot contain a sub-statement")
)

// InvalidIdentifierError reports an actor whose active identifier slot is empty.
type InvalidIdentifierError struct {
	Kind IFIKind
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("actor identifier %s is empty", e.Kind)
}

// MalformedResponseError reports LRS output that could not be decoded.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// BatchCardinalityError reports a batch POST that returned a different number
// of IDs than statements submitted.
type BatchCardinalityError struct {
	Submitted int
	Returned  int
}

func (e *BatchCardinalityError) Error() string {
	return fmt.Sprintf("batch returned %d ids for %d statements", e.Returned, e.Submitted)
}

// InvalidDurationError reports text that is not an ISO-8601 duration.
type InvalidDurationError struct {
	Value string
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid ISO-8601 duration %q", e.Value)
}

// EncodingError reports invalid Base64 input.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid base64: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// MissingParameterError reports a query built without a required parameter.
type MissingParameterError struct {
	Query     string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s requires %s", e.Query, e.Parameter)
}

func malformed(reason string, err error) error {
	return &MalformedResponseError{Reason: reason, Err: err}
}

package xapi

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// VersionHeader carries the protocol version on every LRS request.
const VersionHeader = "X-Experience-API-Version"

// LRS resource paths relative to the endpoint.
const (
	StatementsPath      = "statements"
	StatePath           = "activities/state"
	AgentsPath          = "agents"
	AgentProfilePath    = "agents/profile"
	ActivitiesPath      = "activities"
	ActivityProfilePath = "activities/profile"
	AboutPath           = "about"
)

// Endpoint is the base URL of an LRS. It always ends with "/".
type Endpoint struct {
	base *url.URL
}

// NewEndpoint parses an absolute LRS base URL, adding a trailing slash when missing.
func NewEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q must be an absolute URL", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return Endpoint{base: u}, nil
}

func (e Endpoint) String() string {
	if e.base == nil {
		return ""
	}
	return e.base.String()
}

// Resolve returns the URL of resource followed by query.
func (e Endpoint) Resolve(resource, query string) string {
	return e.String() + resource + query
}

// Statements returns the statements resource with query appended.
func (e Endpoint) Statements(query string) string { return e.Resolve(StatementsPath, query) }

// More resolves a more IRL from a StatementResult against the endpoint host.
func (e Endpoint) More(irl string) (string, error) {
	if irl == "" {
		return "", fmt.Errorf("empty more irl")
	}
	ref, err := url.Parse(irl)
	if err != nil {
		return "", fmt.Errorf("invalid more irl: %w", err)
	}
	if !strings.Contains(ref.Path, "/more/") && !strings.HasPrefix(ref.Path, "more/") {
		return "", fmt.Errorf("more irl %q has no /more/ segment", irl)
	}
	if e.base == nil {
		return "", fmt.Errorf("endpoint not set")
	}
	return e.base.ResolveReference(ref).String(), nil
}

// AuthMethod selects how credentials become the Authorization header.
type AuthMethod string

const (
	AuthBasic           AuthMethod = "basic"
	AuthBasicPreEncoded AuthMethod = "basic-pre-encoded"
)

// ParseAuthMethod accepts the names used in configuration files.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch AuthMethod(strings.ToLower(strings.TrimSpace(s))) {
	case AuthBasic, "":
		return AuthBasic, nil
	case AuthBasicPreEncoded, "preencoded", "pre-encoded":
		return AuthBasicPreEncoded, nil
	}
	return "", fmt.Errorf("unknown auth method %q", s)
}

// EncodeBase64 encodes s with standard padding.
func EncodeBase64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// DecodeBase64 decodes standard Base64 text.
func DecodeBase64(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return "", &EncodingError{Err: err}
	}
	return string(raw), nil
}

// BasicAuthHeader returns the Authorization value for user and password.
func BasicAuthHeader(user, password string) string {
	return "Basic " + EncodeBase64(user+":"+password)
}

// PreEncodedAuthHeader validates an already encoded user:password credential
// and returns the Authorization value for it.
func PreEncodedAuthHeader(encoded string) (string, error) {
	encoded = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(encoded), "Basic "))
	decoded, err := DecodeBase64(encoded)
	if err != nil {
		return "", err
	}
	if !strings.Contains(decoded, ":") {
		return "", ErrMissingCredentialSeparator
	}
	return "Basic " + encoded, nil
}

// ParseBasicAuthHeader splits a Basic Authorization value into user and password.
func ParseBasicAuthHeader(header string) (string, string, error) {
	scheme, encoded, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "basic") {
		return "", "", fmt.Errorf("not a basic credential")
	}
	decoded, err := DecodeBase64(encoded)
	if err != nil {
		return "", "", err
	}
	user, pass, ok := strings.Cut(decoded, ":")
	if !ok {
		return "", "", ErrMissingCredentialSeparator
	}
	return user, pass, nil
}

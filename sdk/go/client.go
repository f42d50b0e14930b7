package xapisdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"xapikit/xapi"
)

// Client talks to one LRS endpoint. It is safe for concurrent use once built.
type Client struct {
	Endpoint      xapi.Endpoint
	Authorization string
	HTTPClient    *http.Client
	Timeout       time.Duration
	Logger        zerolog.Logger

	cache       *cache.Cache
	defaultOnce sync.Once
	defaultHTTP *http.Client
}

// Options configures a client from plain settings.
type Options struct {
	Endpoint   string
	AuthMethod string
	Username   string
	Password   string
	// Credential is a Base64 user:password used with the pre-encoded method.
	Credential string
	Timeout    time.Duration
	Logger     *zerolog.Logger
}

// New creates a client with sane defaults.
func New(endpoint xapi.Endpoint, authorization string) *Client {
	return &Client{
		Endpoint:      endpoint,
		Authorization: authorization,
		Timeout:       10 * time.Second,
		Logger:        zerolog.Nop(),
		cache:         cache.New(10*time.Minute, 15*time.Minute),
	}
}

// NewBasic creates a client authenticating with user and password.
func NewBasic(endpoint, user, password string) (*Client, error) {
	return FromOptions(Options{Endpoint: endpoint, AuthMethod: string(xapi.AuthBasic), Username: user, Password: password})
}

// NewPreEncoded creates a client from a Base64 user:password credential.
func NewPreEncoded(endpoint, credential string) (*Client, error) {
	return FromOptions(Options{Endpoint: endpoint, AuthMethod: string(xapi.AuthBasicPreEncoded), Credential: credential})
}

// FromOptions validates opts and builds a client.
func FromOptions(opts Options) (*Client, error) {
	ep, err := xapi.NewEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	method, err := xapi.ParseAuthMethod(opts.AuthMethod)
	if err != nil {
		return nil, err
	}
	var authz string
	switch method {
	case xapi.AuthBasicPreEncoded:
		authz, err = xapi.PreEncodedAuthHeader(opts.Credential)
		if err != nil {
			return nil, fmt.Errorf("credential: %w", err)
		}
	default:
		if opts.Username == "" {
			return nil, errors.New("username is required for basic auth")
		}
		authz = xapi.BasicAuthHeader(opts.Username, opts.Password)
	}
	c := New(ep, authz)
	if opts.Timeout > 0 {
		c.Timeout = opts.Timeout
	}
	if opts.Logger != nil {
		c.Logger = *opts.Logger
	}
	return c, nil
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the LRS.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type request struct {
	method      string
	url         string
	body        []byte
	contentType string
	header      map[string]string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// httpClient returns HTTPClient, or a client built once from Timeout when
// HTTPClient is nil.
func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	c.defaultOnce.Do(func() {
		c.defaultHTTP = &http.Client{Timeout: c.Timeout}
	})
	return c.defaultHTTP
}

func (c *Client) do(ctx context.Context, r request) (response, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, bytes.NewReader(r.body))
	if err != nil {
		return response{}, err
	}
	contentType := r.contentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(xapi.VersionHeader, xapi.Version)
	if c.Authorization != "" {
		req.Header.Set("Authorization", c.Authorization)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.Logger.Debug().Err(err).Str("method", r.method).Str("url", r.url).Msg("lrs request failed")
		return response{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, err
	}
	c.Logger.Debug().
		Str("method", r.method).
		Str("url", r.url).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("lrs request")
	if resp.StatusCode >= 300 {
		return response{status: resp.StatusCode, header: resp.Header}, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return response{status: resp.StatusCode, header: resp.Header, body: b}, nil
}

// About returns the LRS version information. Results are cached.
func (c *Client) About(ctx context.Context) (xapi.About, error) {
	const cacheKey = "about"
	if x, found := c.cacheGet(cacheKey); found {
		if about, ok := x.(xapi.About); ok {
			return about, nil
		}
	}
	resp, err := c.do(ctx, request{method: http.MethodGet, url: c.Endpoint.Resolve(xapi.AboutPath, "")})
	if err != nil {
		return xapi.About{}, err
	}
	var about xapi.About
	if err := decodeJSON(resp.body, &about); err != nil {
		return xapi.About{}, err
	}
	c.cacheSet(cacheKey, about)
	return about, nil
}

func (c *Client) cacheGet(key string) (any, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *Client) cacheSet(key string, v any) {
	if c.cache == nil {
		return
	}
	c.cache.Set(key, v, cache.DefaultExpiration)
}

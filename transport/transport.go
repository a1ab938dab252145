// Package transport is the HTTP primitive shared by the session manager and
// the query layer. A Request describes a call relative to a base URL; Do
// performs it and reports failures as *ErrorResponse.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json"

	// CodeNetworkError is reported when no HTTP response was received.
	CodeNetworkError = "NETWORK_ERROR"
	// CodeParsingError is reported when a 2xx body could not be decoded.
	CodeParsingError = "PARSING_ERROR"
)

// Request is a transport request descriptor.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// ErrorResponse is the error shape stored on rejected cache entries.
// Status is the HTTP status code, or 0 when Code names a transport failure.
// Data is the server provided body, passed through verbatim.
type ErrorResponse struct {
	Status int             `json:"status"`
	Code   string          `json:"code,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Err    error           `json:"-"`
}

func (e *ErrorResponse) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Code, e.Err)
		}
		return e.Code
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("http %d: %s", e.Status, string(e.Data))
	}
	return fmt.Sprintf("http %d", e.Status)
}

func (e *ErrorResponse) Unwrap() error {
	return e.Err
}

// HeaderFunc is a request preparation hook run before every request.
type HeaderFunc func(ctx context.Context, header http.Header)

type Client struct {
	baseURL *url.URL
	http    *http.Client
	prepare []HeaderFunc
	log     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http = &http.Client{Timeout: d, Transport: cl.http.Transport} }
}

// WithPrepareHeaders appends a hook that may set headers on each request.
func WithPrepareHeaders(fn HeaderFunc) Option {
	return func(cl *Client) { cl.prepare = append(cl.prepare, fn) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// New creates a client whose request paths are resolved against baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		log:     log.Logger.With().Str("component", "transport").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the absolute URL for a request descriptor.
func (c *Client) URL(req Request) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String()
}

// Do performs req and returns the raw response body of a 2xx response.
// Extra headers are applied after the prepare hooks.
func (c *Client) Do(ctx context.Context, req Request, header http.Header) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.URL(req), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		httpReq.Header.Set("Content-Type", contentTypeJSON)
	}
	for _, fn := range c.prepare {
		fn(ctx, httpReq.Header)
	}
	for k, v := range header {
		httpReq.Header[k] = v
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", req.Path).Msg("request failed")
		return nil, &ErrorResponse{Code: CodeNetworkError, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrorResponse{Code: CodeNetworkError, Err: err}
	}
	c.log.Debug().
		Str("method", method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ErrorResponse{Status: resp.StatusCode, Data: rawJSON(data)}
	}
	return data, nil
}

// DoJSON performs req and decodes a 2xx body into out. An empty body leaves
// out untouched.
func (c *Client) DoJSON(ctx context.Context, req Request, header http.Header, out any) error {
	data, err := c.Do(ctx, req, header)
	if err != nil {
		return err
	}
	return Decode(data, out)
}

// Decode unmarshals a successful body, reporting failures as PARSING_ERROR.
func Decode(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ErrorResponse{Code: CodeParsingError, Data: rawJSON(data), Err: err}
	}
	return nil
}

// BearerHeader returns a header carrying token as a bearer credential.
func BearerHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// rawJSON keeps valid JSON bodies as-is and quotes anything else so the
// stored Data is always valid JSON.
func rawJSON(data []byte) json.RawMessage {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	quoted, _ := json.Marshal(string(data))
	return json.RawMessage(quoted)
}

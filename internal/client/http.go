// Package client provides the HTTP transport and typed REST calls for the
// mrsunkwn backend. Every request goes out with the same base URL and header
// set, and every completed response passes through the interceptor chain
// before the caller sees it.
package client

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

	"github.com/google/uuid"
	"golang.org/x/net/http2"
)

// RequestIDHeader carries the id shared by a logical request and its retries.
const RequestIDHeader = "X-Request-Id"

// Request is one logical call. Interceptors reissue it unchanged.
type Request struct {
	Method string
	Path   string // may carry its own query string
	Query  url.Values
	Body   []byte
	Header http.Header
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Reissue sends the original request again. The reissued call does not pass
// through the interceptor chain.
type Reissue func(ctx context.Context) (*Response, error)

// Interceptor inspects a completed response before it is returned and may
// replace it, typically with the result of reissue.
type Interceptor func(ctx context.Context, req *Request, resp *Response, reissue Reissue) (*Response, error)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithToken sets a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithHeader adds a default header.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// WithTimeout bounds each individual round trip. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithInterceptor appends an interceptor to the response chain.
func WithInterceptor(ic Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, ic)
	}
}

// Client makes REST calls against a fixed base URL.
type Client struct {
	baseURL      string
	header       http.Header
	timeout      time.Duration
	client       *http.Client
	interceptors []Interceptor
}

// NewClient creates a client targeting baseURL (e.g. "http://127.0.0.1:8000").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		header:  http.Header{},
	}
	c.header.Set("Content-Type", "application/json")
	c.header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Transport: newTransport()}
	}
	return c
}

// newTransport clones the default transport and enables HTTP/2 on it.
func newTransport() http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if err := http2.ConfigureTransport(t); err != nil {
		return http.DefaultTransport
	}
	return t
}

// BaseURL returns the address every request is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends req, runs the interceptor chain and converts non-2xx results into
// a *StatusError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	req = c.prepare(req)

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	reissue := func(ctx context.Context) (*Response, error) {
		return c.roundTrip(ctx, req)
	}
	for _, ic := range c.interceptors {
		resp, err = ic(ctx, req, resp, reissue)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, newStatusError(req, resp)
	}
	return resp, nil
}

// Send marshals body (if non-nil) as JSON and sends it.
func (c *Client) Send(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	req := &Request{Method: method, Path: path}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		req.Body = data
	}
	return c.Do(ctx, req)
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Send(ctx, http.MethodGet, path, nil)
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Send(ctx, http.MethodPost, path, body)
}

// GetJSON fetches path and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	return decode(resp, http.MethodGet, path, out)
}

// PostJSON posts in and decodes the response body into out (if non-nil).
func (c *Client) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	resp, err := c.Post(ctx, path, in)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(resp, http.MethodPost, path, out)
}

func decode(resp *Response, method, path string, out interface{}) error {
	if len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// prepare copies req, merges the default headers and stamps the request id
// shared by every attempt.
func (c *Client) prepare(req *Request) *Request {
	r := *req
	r.Header = c.header.Clone()
	for k, vs := range req.Header {
		r.Header[k] = append([]string(nil), vs...)
	}
	if r.Header.Get(RequestIDHeader) == "" {
		r.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	return &r
}

func (c *Client) target(req *Request) string {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + req.Query.Encode()
	}
	return u
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.Method, c.target(req), body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	hr.Header = req.Header.Clone()

	resp, err := c.client.Do(hr)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

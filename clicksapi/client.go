// Package clicksapi talks to the remote click counter service. The service
// exposes three endpoints, all answering with the current count:
//
//	GET  /clicks
//	POST /click
//	POST /reset
//
// A non-2xx answer is returned as a *RequestFailedError carrying the raw
// response text; a request that never got an answer is a *TransportError.
package clicksapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultBaseURL is where the click service lives in local development.
const DefaultBaseURL = "http://api.localhost:8000"

const (
	PathClicks = "/clicks"
	PathClick  = "/click"
	PathReset  = "/reset"
)

// Clicks is the body of every successful response.
type Clicks struct {
	Clicks int `json:"clicks"`
}

// Client issues requests against a base URL. It has no timeout unless one
// is configured on the *http.Client passed through WithHTTPClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		header:     make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the address paths are appended to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends one request with no body to <baseURL><path>. Extra headers apply
// to this request only and win over the client-wide ones.
func (c *Client) Do(ctx context.Context, method, path string, header http.Header) (*Clicks, error) {
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, &TransportError{Method: method, Path: path, Err: err}
		}
		return nil, &RequestFailedError{StatusCode: res.StatusCode, Body: string(body)}
	}

	var clicks Clicks
	if err := json.NewDecoder(res.Body).Decode(&clicks); err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return &clicks, nil
}

// Get fetches the current count.
func (c *Client) Get(ctx context.Context) (*Clicks, error) {
	return c.Do(ctx, http.MethodGet, PathClicks, nil)
}

// Click increments the count.
func (c *Client) Click(ctx context.Context) (*Clicks, error) {
	return c.Do(ctx, http.MethodPost, PathClick, nil)
}

// Reset sets the count back to zero.
func (c *Client) Reset(ctx context.Context) (*Clicks, error) {
	return c.Do(ctx, http.MethodPost, PathReset, nil)
}

// Package rpc is the client side of the content platform's internal RPC
// layer. Calls return decoded payloads or a categorized Fault; the pipeline's
// fault translator keys off the login-required code.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Invoker performs platform RPC calls. WithSession binds a copy of the
// invoker to one end-user's session so per-request handlers never mutate the
// shared base invoker.
type Invoker interface {
	Call(ctx context.Context, endpoint string, params url.Values, out any) error
	WithSession(sessionKey string) Invoker
}

// ClientOption configures the HTTP invoker.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is the HTTP implementation of Invoker.
type Client struct {
	baseURL    string
	sessionKey string
	httpClient *http.Client
}

// NewClient creates an invoker for the platform RPC endpoint.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSession returns a copy of the client bound to sessionKey.
func (c *Client) WithSession(sessionKey string) Invoker {
	clone := *c
	clone.sessionKey = sessionKey
	return &clone
}

// envelope is the platform's uniform response wrapper.
type envelope struct {
	Error   int             `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Call invokes endpoint with params and unmarshals the payload into out.
// A non-zero error code in the envelope becomes a *Fault; a non-JSON upstream
// response becomes a *Fault carrying the raw response.
func (c *Client) Call(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create rpc request: %w", err)
	}
	if c.sessionKey != "" {
		req.Header.Set("X-Session-Key", c.sessionKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &Fault{
			Code:    resp.StatusCode,
			Message: "malformed rpc response",
			Response: &RawResponse{
				StatusCode:  resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        body,
			},
		}
	}

	if env.Error != 0 {
		return &Fault{
			Code:    env.Error,
			Message: Describe(env.Error, env.Message),
		}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("unmarshal rpc payload from %s: %w", endpoint, err)
		}
	}
	return nil
}

var _ Invoker = (*Client)(nil)

// Package wechat talks to the WeChat open platform: app credentials (access
// token, jsapi ticket), the per-user OAuth grant flow, and the JS-SDK
// signature. Credential caching lives in CredentialCache; Client is the
// stateless wire layer.
package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.weixin.qq.com"
	defaultConsentBase = "https://open.weixin.qq.com/connect/oauth2/authorize"
	defaultTimeout     = 4 * time.Second
)

// Failure categories for upstream calls.
type ErrorKind string

const (
	ErrTimeout      ErrorKind = "timeout"
	ErrHTTPStatus   ErrorKind = "http_status"
	ErrMissingField ErrorKind = "missing_field"
	ErrTransport    ErrorKind = "transport"
)

// APIError is a categorized upstream failure. RawBody carries the upstream
// response body when one was received.
type APIError struct {
	Kind    ErrorKind
	Op      string
	RawBody string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wechat %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("wechat %s: %s", e.Op, e.Kind)
}

func (e *APIError) Unwrap() error { return e.Err }

// OAuth scopes for the consent URL.
const (
	ScopeBase     = "snsapi_base"
	ScopeUserInfo = "snsapi_userinfo"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithConsentBaseURL sets a custom consent-page base URL.
func WithConsentBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.consentBase = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is the WeChat open platform API client. Each call is one bounded
// synchronous GET; the client holds no per-call state and is safe for
// concurrent use.
type Client struct {
	appID       string
	appSecret   string
	baseURL     string
	consentBase string
	httpClient  *http.Client
}

// NewClient creates a client for the given app credentials.
func NewClient(appID, appSecret string, opts ...ClientOption) *Client {
	c := &Client{
		appID:       appID,
		appSecret:   appSecret,
		baseURL:     defaultBaseURL,
		consentBase: defaultConsentBase,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AppID returns the configured app identifier.
func (c *Client) AppID() string { return c.appID }

// Credential is a short-lived upstream credential with its reported lifetime.
type Credential struct {
	Value     string
	TTLSecond int64
}

// FetchToken obtains a fresh app access token.
func (c *Client) FetchToken(ctx context.Context) (Credential, error) {
	params := url.Values{}
	params.Set("grant_type", "client_credential")
	params.Set("appid", c.appID)
	params.Set("secret", c.appSecret)

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	raw, err := c.get(ctx, "fetch_token", "/cgi-bin/token", params, &res)
	if err != nil {
		return Credential{}, err
	}
	if res.AccessToken == "" {
		return Credential{}, &APIError{Kind: ErrMissingField, Op: "fetch_token", RawBody: raw}
	}
	return Credential{Value: res.AccessToken, TTLSecond: res.ExpiresIn}, nil
}

// FetchTicket obtains a fresh jsapi ticket. Requires a currently valid access
// token.
func (c *Client) FetchTicket(ctx context.Context, token string) (Credential, error) {
	params := url.Values{}
	params.Set("access_token", token)
	params.Set("type", "jsapi")

	var res struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int64  `json:"expires_in"`
	}
	raw, err := c.get(ctx, "fetch_ticket", "/cgi-bin/ticket/getticket", params, &res)
	if err != nil {
		return Credential{}, err
	}
	if res.Ticket == "" {
		return Credential{}, &APIError{Kind: ErrMissingField, Op: "fetch_ticket", RawBody: raw}
	}
	return Credential{Value: res.Ticket, TTLSecond: res.ExpiresIn}, nil
}

// ExchangeCode trades an authorization code for a per-user grant.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Grant, error) {
	params := url.Values{}
	params.Set("appid", c.appID)
	params.Set("secret", c.appSecret)
	params.Set("code", code)
	params.Set("grant_type", "authorization_code")

	var g Grant
	raw, err := c.get(ctx, "exchange_code", "/sns/oauth2/access_token", params, &g)
	if err != nil {
		return Grant{}, err
	}
	if g.AccessToken == "" {
		return Grant{}, &APIError{Kind: ErrMissingField, Op: "exchange_code", RawBody: raw}
	}
	return g, nil
}

// RefreshGrant exchanges a refresh token for a renewed grant.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (Grant, error) {
	params := url.Values{}
	params.Set("appid", c.appID)
	params.Set("grant_type", "refresh_token")
	params.Set("refresh_token", refreshToken)

	var g Grant
	raw, err := c.get(ctx, "refresh_grant", "/sns/oauth2/refresh_token", params, &g)
	if err != nil {
		return Grant{}, err
	}
	if g.AccessToken == "" {
		return Grant{}, &APIError{Kind: ErrMissingField, Op: "refresh_grant", RawBody: raw}
	}
	return g, nil
}

// UserProfile is the public profile returned by the sns/userinfo endpoint.
type UserProfile struct {
	OpenID     string   `json:"openid"`
	Nickname   string   `json:"nickname"`
	Sex        int      `json:"sex"`
	Province   string   `json:"province"`
	City       string   `json:"city"`
	Country    string   `json:"country"`
	HeadImgURL string   `json:"headimgurl"`
	Privilege  []string `json:"privilege"`
	UnionID    string   `json:"unionid"`
}

// FetchUserInfo loads a user's profile using their grant.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken, openID string) (UserProfile, error) {
	params := url.Values{}
	params.Set("access_token", accessToken)
	params.Set("openid", openID)
	params.Set("lang", "zh_CN")

	var p UserProfile
	raw, err := c.get(ctx, "fetch_userinfo", "/sns/userinfo", params, &p)
	if err != nil {
		return UserProfile{}, err
	}
	if p.OpenID == "" {
		return UserProfile{}, &APIError{Kind: ErrMissingField, Op: "fetch_userinfo", RawBody: raw}
	}
	return p, nil
}

// FetchMedia downloads a media object by ID using the app access token.
func (c *Client) FetchMedia(ctx context.Context, token, mediaID string) ([]byte, error) {
	params := url.Values{}
	params.Set("access_token", token)
	params.Set("media_id", mediaID)

	u := c.baseURL + "/cgi-bin/media/get?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create media request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport("fetch_media", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: ErrTransport, Op: "fetch_media", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Kind: ErrHTTPStatus, Op: "fetch_media", RawBody: string(body)}
	}
	// Error payloads come back as JSON even for media downloads.
	if strings.Contains(string(body), "errcode") {
		return nil, &APIError{Kind: ErrHTTPStatus, Op: "fetch_media", RawBody: string(body)}
	}
	return body, nil
}

// ConsentURL builds the OAuth consent page URL. The provider requires the
// query parameters in exactly this order, so they are assembled by hand
// rather than through url.Values.
func (c *Client) ConsentURL(redirectURL, scope, state string) string {
	if scope == "" {
		scope = ScopeBase
	}
	if state == "" {
		state = "STATE"
	}
	pairs := []string{
		"appid=" + url.QueryEscape(c.appID),
		"redirect_uri=" + url.QueryEscape(redirectURL),
		"response_type=code",
		"scope=" + url.QueryEscape(scope),
		"state=" + url.QueryEscape(state),
	}
	return c.consentBase + "?" + strings.Join(pairs, "&") + "#wechat_redirect"
}

// get performs one bounded GET and decodes the JSON body into out, returning
// the raw body for missing-field diagnostics.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) (string, error) {
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Kind: ErrTransport, Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Kind: ErrHTTPStatus, Op: op, RawBody: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return "", &APIError{Kind: ErrMissingField, Op: op, RawBody: string(body), Err: err}
	}
	return string(body), nil
}

func classifyTransport(op string, err error) *APIError {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return &APIError{Kind: ErrTimeout, Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: ErrTimeout, Op: op, Err: err}
	}
	return &APIError{Kind: ErrTransport, Op: op, Err: err}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Fetcher defines the read side used by the sync orchestrator.
// This interface is implemented by *Client and can be used for testing.
type Fetcher interface {
	FetchUser(ctx context.Context, id int64) ([]User, error)
	FetchTargets(ctx context.Context, filters Filters) ([]Target, error)
}

// Ensure Client implements Fetcher at compile time.
var _ Fetcher = (*Client)(nil)

// TokenSource supplies the bearer credential for outgoing requests.
type TokenSource interface {
	Token() string
}

// StatusError is returned for any non-2xx API response.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s %s returned status %d: %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.Code)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

// Client talks to the fiscalização HTTP API.
type Client struct {
	baseURL *url.URL
	http    *resty.Client
	tokens  TokenSource
}

const (
	defaultAPIURL    = "127.0.0.1:3333"
	defaultUserAgent = "fiscal/0.1"
	requestTimeout   = 10 * time.Second
)

// Options tune the client transport.
type Options struct {
	Timeout time.Duration
	Retries int
	Tokens  TokenSource
	Logger  zerolog.Logger
}

// NewClient builds a Client for the API at apiURL (host:port or full URL).
func NewClient(apiURL string, opts Options) (*Client, error) {
	base, err := parseBaseURL(apiURL)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = requestTimeout
	}
	c := &Client{baseURL: base, tokens: opts.Tokens}
	c.http = resty.New().
		SetBaseURL(base.String()).
		SetTimeout(timeout).
		SetRetryCount(max(opts.Retries, 0)).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", defaultUserAgent).
		SetLogger(restyLogger{opts.Logger}).
		OnBeforeRequest(c.attachToken)
	return c, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("client is nil")
	}
	body := map[string]string{"username": username, "password": password}
	var payload LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", fmt.Errorf("login response missing access_token")
	}
	return payload.AccessToken, nil
}

// FetchUser retrieves the user record, always normalized to a collection.
func (c *Client) FetchUser(ctx context.Context, id int64) ([]User, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload UserResponse
	if err := c.do(ctx, http.MethodGet, "/user/"+strconv.FormatInt(id, 10), nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Users(), nil
}

// ListUsers retrieves every user account.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload []User
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchTargets retrieves targets matching the non-empty filter fields.
func (c *Client) FetchTargets(ctx context.Context, filters Filters) ([]Target, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload []Target
	if err := c.do(ctx, http.MethodGet, "/target", filters.Query(), nil, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = []Target{}
	}
	return payload, nil
}

// ListTeams retrieves every team.
func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload []Team
	if err := c.do(ctx, http.MethodGet, "/team", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchTeamMembers retrieves a team with its users and targets.
func (c *Client) FetchTeamMembers(ctx context.Context, teamID int64) (*Team, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if teamID <= 0 {
		return nil, fmt.Errorf("team id required")
	}
	var payload Team
	if err := c.do(ctx, http.MethodGet, teamPath(teamID, "users"), nil, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// CreateTeam creates a team with the given name.
func (c *Client) CreateTeam(ctx context.Context, name string) (*Team, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("team name required")
	}
	var payload Team
	if err := c.do(ctx, http.MethodPost, "/team", nil, map[string]string{"name": name}, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// AddTeamUsers adds user accounts to a team.
func (c *Client) AddTeamUsers(ctx context.Context, teamID int64, userIDs []int64) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if teamID <= 0 {
		return fmt.Errorf("team id required")
	}
	if len(userIDs) == 0 {
		return fmt.Errorf("at least one user id required")
	}
	body := map[string][]int64{"userIds": userIDs}
	return c.do(ctx, http.MethodPost, teamPath(teamID, "users"), nil, body, nil)
}

// AssignTargets assigns targets to a team.
func (c *Client) AssignTargets(ctx context.Context, teamID int64, targetIDs []int64) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if teamID <= 0 {
		return fmt.Errorf("team id required")
	}
	if len(targetIDs) == 0 {
		return fmt.Errorf("at least one target id required")
	}
	body := map[string][]int64{"targetIds": targetIDs}
	return c.do(ctx, http.MethodPost, teamPath(teamID, "assign-targets"), nil, body, nil)
}

func teamPath(teamID int64, suffix string) string {
	return "/team/" + strconv.FormatInt(teamID, 10) + "/" + suffix
}

func (c *Client) attachToken(_ *resty.Client, req *resty.Request) error {
	if c.tokens == nil {
		return nil
	}
	if token := strings.TrimSpace(c.tokens.Token()); token != "" {
		req.SetAuthToken(token)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		se := &StatusError{Method: method, Path: path, Code: resp.StatusCode()}
		var eb errorBody
		if json.Unmarshal(resp.Body(), &eb) == nil {
			se.Message = eb.message()
		}
		return se
	}
	if dest == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(apiURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiURL)
	if trimmed == "" {
		trimmed = defaultAPIURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_url %q: %w", apiURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api_url %q: missing host", apiURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// restyLogger routes resty's internal messages to zerolog.
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) { l.log.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...any)  { l.log.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...any) { l.log.Debug().Msgf(format, v...) }

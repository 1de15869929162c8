package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides typed access to the dashboard API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// LoginResponse captures the token payload emitted by the API.
type LoginResponse struct {
	User   User      `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// User reflects API user payloads.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// TokenPair includes access and refresh tokens.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}

// Refresh exchanges a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var resp struct {
		Tokens TokenPair `json:"tokens"`
	}
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, "", &resp); err != nil {
		return TokenPair{}, err
	}
	return resp.Tokens, nil
}

// Logout revokes the access token and, when given, the refresh token.
func (c *Client) Logout(ctx context.Context, token, refreshToken string) error {
	body := map[string]string{}
	if refreshToken != "" {
		body["refresh_token"] = refreshToken
	}
	return c.do(ctx, http.MethodPost, "/auth/logout", body, token, nil)
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, token, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Integration is a catalog integration attached to a project.
type Integration struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Icon string `json:"icon"`
}

// Project is a catalog project with its derived description.
type Project struct {
	ID           string        `json:"id"`
	TeamID       string        `json:"team_id"`
	Name         string        `json:"name"`
	Plan         string        `json:"plan"`
	Status       string        `json:"status"`
	Framework    string        `json:"framework"`
	LastUpdated  string        `json:"last_updated"`
	Description  string        `json:"description"`
	Integrations []Integration `json:"integrations"`
}

// Team is a catalog team with its role and projects.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Plan        string    `json:"plan"`
	Description string    `json:"description"`
	Role        string    `json:"role"`
	Projects    []Project `json:"projects"`
}

// Selection is the session's current team and project.
type Selection struct {
	TeamID    string   `json:"selected_team_id"`
	ProjectID string   `json:"selected_project_id"`
	Team      *Team    `json:"selected_team"`
	Project   *Project `json:"selected_project"`
}

// ListTeams returns the catalog teams.
func (c *Client) ListTeams(ctx context.Context, token string) ([]Team, error) {
	var teams []Team
	if err := c.do(ctx, http.MethodGet, "/workspace/teams", nil, token, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// Selection returns the current selection.
func (c *Client) Selection(ctx context.Context, token string) (Selection, error) {
	var sel Selection
	if err := c.do(ctx, http.MethodGet, "/workspace/selection", nil, token, &sel); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

// SelectTeam selects a team, clearing the project.
func (c *Client) SelectTeam(ctx context.Context, token, teamID string) (Selection, error) {
	var sel Selection
	body := map[string]string{"team_id": teamID}
	if err := c.do(ctx, http.MethodPost, "/workspace/selection/team", body, token, &sel); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

// SelectProject selects a project within the selected team.
func (c *Client) SelectProject(ctx context.Context, token, projectID string) (Selection, error) {
	var sel Selection
	body := map[string]string{"project_id": projectID}
	if err := c.do(ctx, http.MethodPost, "/workspace/selection/project", body, token, &sel); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

// Profile holds editable account fields.
type Profile struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

// Account is the server-side account store snapshot.
type Account struct {
	UserID        string  `json:"user_id"`
	Email         string  `json:"email"`
	Profile       Profile `json:"profile"`
	Original      Profile `json:"original"`
	Loaded        bool    `json:"loaded"`
	Editing       bool    `json:"editing"`
	DisplayAvatar string  `json:"display_avatar"`
	Initials      string  `json:"initials"`
	Loading       bool    `json:"loading"`
	Saving        bool    `json:"saving"`
}

// Profile loads the account, reloading from storage when reload is set.
func (c *Client) Profile(ctx context.Context, token string, reload bool) (Account, error) {
	path := "/account/profile"
	if reload {
		path += "?reload=true"
	}
	var acct Account
	if err := c.do(ctx, http.MethodGet, path, nil, token, &acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// UpdateProfile sets live profile fields keyed by their JSON names.
func (c *Client) UpdateProfile(ctx context.Context, token string, fields map[string]string) (Account, error) {
	return c.account(ctx, http.MethodPatch, "/account/profile", token, fields)
}

// EditProfile enters edit mode.
func (c *Client) EditProfile(ctx context.Context, token string) (Account, error) {
	return c.account(ctx, http.MethodPost, "/account/profile/edit", token, nil)
}

// SaveProfile persists the live profile.
func (c *Client) SaveProfile(ctx context.Context, token string) (Account, error) {
	return c.account(ctx, http.MethodPost, "/account/profile/save", token, nil)
}

// CancelProfile discards unsaved edits.
func (c *Client) CancelProfile(ctx context.Context, token string) (Account, error) {
	return c.account(ctx, http.MethodPost, "/account/profile/cancel", token, nil)
}

func (c *Client) account(ctx context.Context, method, path, token string, body any) (Account, error) {
	var acct Account
	if err := c.do(ctx, method, path, body, token, &acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// ConfigField describes one integration setting.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Default  string   `json:"default"`
	Options  []string `json:"options"`
	Required bool     `json:"required"`
}

// Definition describes an integration and its settings.
type Definition struct {
	Slug        string        `json:"slug"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Fields      []ConfigField `json:"fields"`
	Features    []string      `json:"features"`
	Health      int           `json:"health"`
}

// Definition fetches an integration definition.
func (c *Client) Definition(ctx context.Context, token, slug string) (Definition, error) {
	var def Definition
	path := "/integrations/" + url.PathEscape(slug)
	if err := c.do(ctx, http.MethodGet, path, nil, token, &def); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// IntegrationConfig is a project's stored integration settings.
type IntegrationConfig struct {
	Slug       string            `json:"slug"`
	Values     map[string]string `json:"values"`
	Secrets    []string          `json:"secrets"`
	Enabled    bool              `json:"enabled"`
	Configured bool              `json:"configured"`
	UpdatedAt  *time.Time        `json:"updated_at"`
}

// IntegrationConfig fetches settings with secrets masked.
func (c *Client) IntegrationConfig(ctx context.Context, token, teamID, projectID, slug string) (IntegrationConfig, error) {
	path := fmt.Sprintf("/teams/%s/projects/%s/integrations/%s",
		url.PathEscape(teamID), url.PathEscape(projectID), url.PathEscape(slug))
	var cfg IntegrationConfig
	if err := c.do(ctx, http.MethodGet, path, nil, token, &cfg); err != nil {
		return IntegrationConfig{}, err
	}
	return cfg, nil
}

// Message is a discussion post.
type Message struct {
	ID         string         `json:"id"`
	ParentID   *string        `json:"parent_id"`
	AuthorName string         `json:"author_name"`
	Body       string         `json:"body"`
	Reactions  map[string]int `json:"reactions"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Discussion lists the newest messages of a project.
func (c *Client) Discussion(ctx context.Context, token, teamID, projectID string, limit int) ([]Message, error) {
	path := fmt.Sprintf("/teams/%s/projects/%s/discussion", url.PathEscape(teamID), url.PathEscape(projectID))
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, path, nil, token, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

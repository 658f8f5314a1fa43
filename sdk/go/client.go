package operadorsdk

import (
	"bytes"
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

// Client is a minimal Operador HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Mission represents one step of the mission chain.
type Mission struct {
	ID                 int64  `json:"id"`
	Number             int    `json:"mission_number"`
	Title              string `json:"title"`
	Objective          string `json:"objective"`
	MinimalAction      string `json:"minimal_action"`
	CompletionCriteria string `json:"completion_criteria"`
	SilentPenalty      string `json:"silent_penalty"`
	RequiredStreak     int    `json:"required_streak"`
	Status             string `json:"status"`
	StartedAt          string `json:"started_at,omitempty"`
	CompletedAt        string `json:"completed_at,omitempty"`
}

// Progress is a daily binary check-in.
type Progress struct {
	ID              int64  `json:"id"`
	MissionID       int64  `json:"mission_id"`
	Date            string `json:"date"`
	Completed       bool   `json:"completed"`
	ConsecutiveDays int    `json:"consecutive_days"`
	Notes           string `json:"notes,omitempty"`
}

// Advance reports the outcome of an evaluation.
type Advance struct {
	Mission  Mission  `json:"mission"`
	Next     *Mission `json:"next,omitempty"`
	Advanced bool     `json:"advanced"`
	Streak   int      `json:"streak"`
	Required int      `json:"required"`
}

// Autonomy is the score derived from completed missions.
type Autonomy struct {
	Percent   int  `json:"percent"`
	Ready     bool `json:"ready"`
	Completed int  `json:"completed"`
	Total     int  `json:"total"`
}

// Session carries a freshly issued token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// Interaction is one exchange with a guidance agent.
type Interaction struct {
	ID          string `json:"id"`
	AgentType   string `json:"agent_type"`
	UserMessage string `json:"user_message"`
	AIResponse  string `json:"ai_response"`
	CreatedAt   string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given error code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Signup creates an account and keeps its token for later calls.
func (c *Client) Signup(ctx context.Context, email, password, name string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "auth/signup", map[string]any{"email": email, "password": password, "name": name}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// ListMissions returns the caller's missions in order.
func (c *Client) ListMissions(ctx context.Context) ([]Mission, error) {
	var resp []Mission
	err := c.do(ctx, http.MethodGet, "missions", nil, &resp)
	return resp, err
}

// ActiveMission returns the mission currently open for check-ins.
func (c *Client) ActiveMission(ctx context.Context) (Mission, error) {
	missions, err := c.ListMissions(ctx)
	if err != nil {
		return Mission{}, err
	}
	for _, m := range missions {
		if m.Status == "active" {
			return m, nil
		}
	}
	return Mission{}, errors.New("no active mission")
}

// RecordProgress records a check-in; an empty date means today on the server.
func (c *Client) RecordProgress(ctx context.Context, missionID int64, date string, completed bool, notes string) (Progress, error) {
	body := map[string]any{"completed": completed}
	if date != "" {
		body["date"] = date
	}
	if notes != "" {
		body["notes"] = notes
	}
	var resp struct {
		Success  bool     `json:"success"`
		Progress Progress `json:"progress"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("missions/%d/progress", missionID), body, &resp)
	return resp.Progress, err
}

// TodayProgress returns today's check-in, or nil when none exists yet.
func (c *Client) TodayProgress(ctx context.Context, missionID int64) (*Progress, error) {
	var resp struct {
		Progress *Progress `json:"progress"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("missions/%d/progress/today", missionID), nil, &resp)
	return resp.Progress, err
}

// ProgressHistory lists check-ins newest first.
func (c *Client) ProgressHistory(ctx context.Context, missionID int64, limit int) ([]Progress, error) {
	var resp []Progress
	endpoint := fmt.Sprintf("missions/%d/progress", missionID)
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Advance evaluates the mission and unlocks the next one when its streak is met.
func (c *Client) Advance(ctx context.Context, missionID int64) (Advance, error) {
	var resp Advance
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("missions/%d/advance", missionID), nil, &resp)
	return resp, err
}

// Autonomy returns the current autonomy score.
func (c *Client) Autonomy(ctx context.Context) (Autonomy, error) {
	var resp Autonomy
	err := c.do(ctx, http.MethodGet, "autonomy", nil, &resp)
	return resp, err
}

// Chat sends a message to a guidance agent.
func (c *Client) Chat(ctx context.Context, agentType, message string) (Interaction, error) {
	var resp Interaction
	endpoint := fmt.Sprintf("agents/%s/chat", url.PathEscape(agentType))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"message": message}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

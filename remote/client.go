package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"

	"github.com/ekehi/ekehi-sync-server/model"
	"github.com/ekehi/ekehi-sync-server/repos"
)

// ErrNotFound is returned when the backend has no record for the
// requested entity.
var ErrNotFound = errors.New("remote entity not found")

// Config holds the connection parameters for the rewards backend.
type Config struct {
	// Endpoint is the base URL of the backend REST API.
	Endpoint string
	// ProjectID scopes every request to one application project.
	ProjectID string
	// APIKey authenticates requests.
	APIKey string
	// Timeout bounds each HTTP request. Zero means 30 seconds.
	Timeout time.Duration
}

// Client talks to the rewards backend over its REST API. It implements
// the per-entity source interfaces the offline repositories consume.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Compile-time checks that Client satisfies every source seam.
var _ repos.UserProfileSource = (*Client)(nil)
var _ repos.MiningSessionSource = (*Client)(nil)
var _ repos.SocialTaskSource = (*Client)(nil)

// NewClient creates a backend client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// doRequest issues one HTTP request and decodes a JSON response body into
// out when out is non-nil. A 404 becomes ErrNotFound; any other non-2xx
// status becomes an error carrying the status and body.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(payload)
	}

	reqURL := c.cfg.Endpoint + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Project-Id", c.cfg.ProjectID)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(detail))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

// GetProfile fetches the canonical profile for userID. A user the backend
// does not know yields a nil profile and no error, so callers can treat
// an unregistered user the same as an empty cache.
func (c *Client) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var profile model.UserProfile
	path := fmt.Sprintf("/v1/users/%s/profile", url.PathEscape(userID))
	err := c.doRequest(ctx, http.MethodGet, path, nil, &profile)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile applies a partial update to the canonical profile and
// returns the updated copy.
func (c *Client) UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) (*model.UserProfile, error) {
	var profile model.UserProfile
	path := fmt.Sprintf("/v1/users/%s/profile", url.PathEscape(userID))
	if err := c.doRequest(ctx, http.MethodPatch, path, fields, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// CreateSession registers a session with the backend. The session keeps
// the ID it was given at creation so offline starts survive the upload.
func (c *Client) CreateSession(ctx context.Context, session *model.MiningSession) (*model.MiningSession, error) {
	var created model.MiningSession
	path := fmt.Sprintf("/v1/users/%s/sessions", url.PathEscape(session.UserID))
	if err := c.doRequest(ctx, http.MethodPost, path, session, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateSession replaces the backend copy of a session.
func (c *Client) UpdateSession(ctx context.Context, session *model.MiningSession) (*model.MiningSession, error) {
	var updated model.MiningSession
	path := fmt.Sprintf("/v1/sessions/%s", url.PathEscape(session.ID))
	if err := c.doRequest(ctx, http.MethodPut, path, session, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetSession fetches one session by ID. An unknown ID yields nil, nil.
func (c *Client) GetSession(ctx context.Context, id string) (*model.MiningSession, error) {
	var session model.MiningSession
	path := fmt.Sprintf("/v1/sessions/%s", url.PathEscape(id))
	err := c.doRequest(ctx, http.MethodGet, path, nil, &session)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessions fetches the user's session history, newest first.
func (c *Client) GetSessions(ctx context.Context, userID string) ([]*model.MiningSession, error) {
	var sessions []*model.MiningSession
	path := fmt.Sprintf("/v1/users/%s/sessions", url.PathEscape(userID))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetTasks fetches the global task catalog.
func (c *Client) GetTasks(ctx context.Context) ([]*model.SocialTask, error) {
	var tasks []*model.SocialTask
	if err := c.doRequest(ctx, http.MethodGet, "/v1/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetUserTasks fetches the user's completion records.
func (c *Client) GetUserTasks(ctx context.Context, userID string) ([]*model.TaskCompletion, error) {
	var completions []*model.TaskCompletion
	path := fmt.Sprintf("/v1/users/%s/completions", url.PathEscape(userID))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &completions); err != nil {
		return nil, err
	}
	return completions, nil
}

// CompleteTask reports the completion of taskID by userID and returns the
// backend's completion record, which carries its verification verdict.
func (c *Client) CompleteTask(ctx context.Context, userID string, taskID string, proof string) (*model.TaskCompletion, error) {
	var completion model.TaskCompletion
	path := fmt.Sprintf("/v1/users/%s/completions", url.PathEscape(userID))
	body := map[string]interface{}{
		"task_id": taskID,
		"proof":   proof,
	}
	if err := c.doRequest(ctx, http.MethodPost, path, body, &completion); err != nil {
		return nil, err
	}
	return &completion, nil
}

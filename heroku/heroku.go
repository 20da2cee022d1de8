// Package heroku is a thin client for the handful of Platform API
// calls the CLI needs: config vars, dyno listing, and formation scale.
// One HTTP call per method, no retries.
package heroku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://api.heroku.com"
	acceptHeader   = "application/vnd.heroku+json; version=3"

	// EnvToken names the environment variable carrying the API token.
	EnvToken = "HEROKU_API_KEY"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Dyno is one running process as the Platform API reports it.
type Dyno struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	State     string    `json:"state"`
	Command   string    `json:"command"`
	CreatedAt time.Time `json:"created_at"`
}

// Formation is one process type's scale after an update.
type Formation struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
	Size     string `json:"size"`
}

// FormationUpdate requests a new quantity for one process type.
type FormationUpdate struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

// APIError is the structured error body the Platform API returns on
// non-2xx responses.
type APIError struct {
	Status  int
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("heroku: %s (%s, status %d)", e.Message, e.ID, e.Status)
}

// NewClient builds a client with the given token. An empty token falls
// back to the HEROKU_API_KEY environment variable.
func NewClient(token string) *Client {
	if token == "" {
		token = os.Getenv(EnvToken)
	}
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithBaseURL exists for tests pointed at a local server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

// ConfigVars returns the app's full config var map.
func (c *Client) ConfigVars(ctx context.Context, app string) (map[string]string, error) {
	var vars map[string]string
	err := c.do(ctx, http.MethodGet, "/apps/"+app+"/config-vars", nil, &vars)
	return vars, err
}

// SetConfigVars patches config vars. A nil value unsets the var.
func (c *Client) SetConfigVars(ctx context.Context, app string, vars map[string]*string) (map[string]string, error) {
	var updated map[string]string
	err := c.do(ctx, http.MethodPatch, "/apps/"+app+"/config-vars", vars, &updated)
	return updated, err
}

// Dynos lists the app's running dynos.
func (c *Client) Dynos(ctx context.Context, app string) ([]Dyno, error) {
	var dynos []Dyno
	err := c.do(ctx, http.MethodGet, "/apps/"+app+"/dynos", nil, &dynos)
	return dynos, err
}

// Scale updates formation quantities in one batch call.
func (c *Client) Scale(ctx context.Context, app string, updates []FormationUpdate) ([]Formation, error) {
	body := map[string][]FormationUpdate{"updates": updates}
	var formations []Formation
	err := c.do(ctx, http.MethodPatch, "/apps/"+app+"/formation", body, &formations)
	return formations, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.token == "" {
		return errors.Errorf("heroku: no API token (set %s)", EnvToken)
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "heroku: encode request")
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "heroku: build request")
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "heroku: %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "heroku: decode %s %s response", method, path)
	}
	return nil
}

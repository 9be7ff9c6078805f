package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taskmgr818/rehab-client/internal/protocol"
)

const httpTimeout = 10 * time.Second

// RejectedError reports a non-OK response from the backend REST API. The
// caller decides whether to retry.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend rejected request: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend rejected request: %d", e.Status)
}

// Client talks to the backend's exercise catalog REST API. It is the
// fallback path for catalog fetches and the home of custom-exercise CRUD.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a catalog client for the given backend base URL
// (e.g. http://localhost:5000).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

// GetActions fetches the full exercise catalog.
func (c *Client) GetActions(ctx context.Context) ([]protocol.Exercise, error) {
	body, err := c.do(ctx, http.MethodGet, "/actions", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Actions []protocol.Exercise `json:"actions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse actions list: %w", err)
	}
	return resp.Actions, nil
}

// SaveAction creates a custom exercise, or updates one when ex.ID is set.
// Returns the saved exercise as the backend recorded it.
func (c *Client) SaveAction(ctx context.Context, ex protocol.Exercise) (protocol.Exercise, error) {
	if err := ex.Validate(); err != nil {
		return protocol.Exercise{}, err
	}

	payload, err := json.Marshal(ex)
	if err != nil {
		return protocol.Exercise{}, fmt.Errorf("marshal exercise: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/actions", payload)
	if err != nil {
		return protocol.Exercise{}, err
	}

	var resp struct {
		Action protocol.Exercise `json:"action"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return protocol.Exercise{}, fmt.Errorf("parse saved exercise: %w", err)
	}
	return resp.Action, nil
}

// DeleteAction removes a custom exercise by id.
func (c *Client) DeleteAction(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/actions/"+id, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rejected := &RejectedError{Status: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &msg) == nil {
			rejected.Message = msg.Message
		}
		return nil, rejected
	}

	return body, nil
}

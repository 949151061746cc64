// File: internal/platform/client.go

// Package platform implements the HTTP client for the hosted solving
// platform: task creation plus the remote-session flow (start, next-action
// polling, screenshot updates, solved notification).
package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session status values reported by next-action polling.
const (
	StatusPending = "pending"
	StatusSolved  = "solved"
	StatusExpired = "expired"
)

// Worker action types.
const (
	ActionClick = "click"
	ActionDrag  = "drag"
)

// CropRect is the wire form of the captcha bounding box, in full-viewport
// pixels.
type CropRect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is a viewport coordinate pair.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Action is a worker-issued input action in full-viewport coordinates.
// Click actions carry X/Y; drag actions carry From/To. Pointers distinguish
// "absent" from zero.
type Action struct {
	Type string `json:"type"`
	X    *int   `json:"x,omitempty"`
	Y    *int   `json:"y,omitempty"`
	From *Point `json:"from,omitempty"`
	To   *Point `json:"to,omitempty"`
}

// CreateTaskResponse is the result of task creation. ErrorID != 0 or a
// missing TaskID is a hard failure.
type CreateTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	TaskID           string `json:"taskId"`
	ErrorDescription string `json:"errorDescription,omitempty"`
}

// NextActionResponse is one poll result: the session status plus, when the
// worker has issued one, the next action to replay.
type NextActionResponse struct {
	Status string  `json:"status"`
	Action *Action `json:"action,omitempty"`
}

// API is the platform surface consumed by the solver. Implementations must
// tolerate concurrent use across independent solve attempts.
type API interface {
	CreateTask(ctx context.Context, pageURL string) (*CreateTaskResponse, error)
	StartSession(ctx context.Context, taskID, screenshot, pageURL string, width, height int, crop *CropRect) error
	NextAction(ctx context.Context, taskID string) (*NextActionResponse, error)
	PushScreenshot(ctx context.Context, taskID, screenshot string, width, height int, crop *CropRect) error
	SubmitSolved(ctx context.Context, taskID, token string) error
}

// Client talks to the platform over HTTP. Safe for concurrent use; the
// underlying http.Client connection pool is shared across attempts.
type Client struct {
	baseURL   string
	clientKey string
	httpc     *http.Client
	logger    *zap.Logger
}

var _ API = (*Client)(nil)

// NewClient creates a platform client for the given base URL and client key.
func NewClient(baseURL, clientKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		clientKey: clientKey,
		httpc:     &http.Client{Timeout: timeout},
		logger:    logger.Named("platform"),
	}
}

// CreateTask creates a RemoteCaptchaTask for the given page URL.
func (c *Client) CreateTask(ctx context.Context, pageURL string) (*CreateTaskResponse, error) {
	body := map[string]interface{}{
		"clientKey": c.clientKey,
		"task": map[string]interface{}{
			"type":       "RemoteCaptchaTask",
			"websiteURL": pageURL,
		},
	}
	var resp CreateTaskResponse
	if err := c.postJSON(ctx, "/api/createTask", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartSession begins the remote session, transmitting the first screenshot
// together with the viewport dimensions and crop rectangle captured in the
// same snapshot.
func (c *Client) StartSession(ctx context.Context, taskID, screenshot, pageURL string, width, height int, crop *CropRect) error {
	body := map[string]interface{}{
		"clientKey":  c.clientKey,
		"taskId":     taskID,
		"screenshot": screenshot,
		"pageUrl":    pageURL,
		"width":      width,
		"height":     height,
		"cropRect":   crop,
	}
	return c.postJSON(ctx, "/api/client/remote-session/start", body, nil)
}

// NextAction polls for the next worker-issued action.
func (c *Client) NextAction(ctx context.Context, taskID string) (*NextActionResponse, error) {
	endpoint := fmt.Sprintf("%s/api/client/remote-session/%s/next-action?clientKey=%s",
		c.baseURL, url.PathEscape(taskID), url.QueryEscape(c.clientKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")

	var resp NextActionResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PushScreenshot sends a refreshed screenshot for the running session.
func (c *Client) PushScreenshot(ctx context.Context, taskID, screenshot string, width, height int, crop *CropRect) error {
	path := fmt.Sprintf("/api/client/remote-session/%s/screenshot", url.PathEscape(taskID))
	body := map[string]interface{}{
		"clientKey":  c.clientKey,
		"screenshot": screenshot,
		"width":      width,
		"height":     height,
		"cropRect":   crop,
	}
	return c.postJSON(ctx, path, body, nil)
}

// SubmitSolved notifies the platform that the captcha was solved and submits
// the token. Submission is not idempotent on the remote side; callers must
// guarantee at-most-once delivery.
func (c *Client) SubmitSolved(ctx context.Context, taskID, token string) error {
	path := fmt.Sprintf("/api/client/remote-session/%s/solved", url.PathEscape(taskID))
	body := map[string]interface{}{
		"clientKey": c.clientKey,
		"token":     token,
	}
	return c.postJSON(ctx, path, body, nil)
}

// postJSON sends a JSON POST and decodes the response into out (when out is
// non-nil).
func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	return c.do(req, out)
}

// do executes the request, enforcing 2xx status and decoding the body.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("platform request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read platform response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("Platform returned non-success status.",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("platform returned status %d for %s", resp.StatusCode, req.URL.Path)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode platform response: %w", err)
	}
	return nil
}

// File: internal/platform/client_test.go
package platform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "key-123", 5*time.Second, zap.NewNop())
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestCreateTask(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/createTask", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body := decodeBody(t, r)
		assert.Equal(t, "key-123", body["clientKey"])
		task := body["task"].(map[string]interface{})
		assert.Equal(t, "RemoteCaptchaTask", task["type"])
		assert.Equal(t, "https://example.com/login", task["websiteURL"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"errorId":0,"taskId":"t-42"}`)
	})

	resp, err := c.CreateTask(context.Background(), "https://example.com/login")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ErrorID)
	assert.Equal(t, "t-42", resp.TaskID)
}

func TestCreateTaskPlatformError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"errorId":12,"errorDescription":"invalid key"}`)
	})

	resp, err := c.CreateTask(context.Background(), "https://example.com")
	require.NoError(t, err, "application errors travel in the body, not as HTTP failures")
	assert.Equal(t, 12, resp.ErrorID)
	assert.Empty(t, resp.TaskID)
	assert.Equal(t, "invalid key", resp.ErrorDescription)
}

func TestStartSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/client/remote-session/start", r.URL.Path)

		body := decodeBody(t, r)
		assert.Equal(t, "t-42", body["taskId"])
		assert.Equal(t, "data:image/png;base64,AAAA", body["screenshot"])
		assert.Equal(t, float64(1280), body["width"])
		assert.Equal(t, float64(720), body["height"])

		crop := body["cropRect"].(map[string]interface{})
		assert.Equal(t, float64(100), crop["left"])
		assert.Equal(t, float64(400), crop["width"])

		w.WriteHeader(http.StatusOK)
	})

	err := c.StartSession(context.Background(), "t-42", "data:image/png;base64,AAAA",
		"https://example.com", 1280, 720,
		&CropRect{Left: 100, Top: 100, Width: 400, Height: 500})
	require.NoError(t, err)
}

func TestNextAction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/client/remote-session/t-42/next-action", r.URL.Path)
		assert.Equal(t, "key-123", r.URL.Query().Get("clientKey"))
		assert.Equal(t, "no-store", r.Header.Get("Cache-Control"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"pending","action":{"type":"click","x":150,"y":160}}`)
	})

	resp, err := c.NextAction(context.Background(), "t-42")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
	require.NotNil(t, resp.Action)
	assert.Equal(t, ActionClick, resp.Action.Type)
	require.NotNil(t, resp.Action.X)
	assert.Equal(t, 150, *resp.Action.X)
}

func TestNextActionDragShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"pending","action":{"type":"drag","from":{"x":1,"y":2},"to":{"x":3,"y":4}}}`)
	})

	resp, err := c.NextAction(context.Background(), "t-42")
	require.NoError(t, err)
	require.NotNil(t, resp.Action)
	assert.Equal(t, ActionDrag, resp.Action.Type)
	require.NotNil(t, resp.Action.From)
	require.NotNil(t, resp.Action.To)
	assert.Equal(t, Point{X: 1, Y: 2}, *resp.Action.From)
	assert.Equal(t, Point{X: 3, Y: 4}, *resp.Action.To)
}

func TestPushScreenshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/client/remote-session/t-42/screenshot", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "key-123", body["clientKey"])
		assert.Nil(t, body["cropRect"], "a missing crop is transmitted as null")
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.PushScreenshot(context.Background(), "t-42", "shot", 1280, 720, nil))
}

func TestSubmitSolved(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/client/remote-session/t-42/solved", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "P0.tok", body["token"])
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.SubmitSolved(context.Background(), "t-42", "P0.tok"))
}

func TestNonSuccessStatusIsAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})

	_, err := c.NextAction(context.Background(), "t-42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestContextCancellationAbortsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.NextAction(ctx, "t-42")
	assert.Error(t, err)
}

func TestBaseURLTrailingSlashIsNormalized(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, `{"errorId":0,"taskId":"t"}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", "k", 0, nil)
	_, err := c.CreateTask(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "/api/createTask", gotPath)
}

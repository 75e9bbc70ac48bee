package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})
	require.NoError(t, err)
	return c
}

func completionResponse(content string) []byte {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return body
}

func TestClassifyFlagsViolation(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionResponse(`{"violation": true, "description": "hate speech targeting a group"}`))
	})

	v, err := c.Classify(context.Background(), "some offensive text", "")
	require.NoError(t, err)
	assert.True(t, v.Violation)
	assert.Equal(t, "hate speech targeting a group", v.Description)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestClassifyCleanContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionResponse(`{"violation": false, "description": ""}`))
	})

	v, err := c.Classify(context.Background(), "a picture of my lunch", "https://cdn.example/lunch.jpg")
	require.NoError(t, err)
	assert.False(t, v.Violation)
}

func TestClassifyStripsCodeFence(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionResponse("```json\n{\"violation\": true, \"description\": \"spam\"}\n```"))
	})

	v, err := c.Classify(context.Background(), "buy now!!!", "")
	require.NoError(t, err)
	assert.True(t, v.Violation)
}

func TestClassifyUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Classify(context.Background(), "text", "")
	assert.Error(t, err)
}

func TestClassifyRequiresContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.Classify(context.Background(), "", "")
	assert.Error(t, err)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

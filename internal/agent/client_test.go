// File: internal/agent/client_test.go
package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	encodingjson "encoding/json"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/argoseyes/uxprobe/internal/config"
)

func testAgentConfig(baseURL string) config.AgentConfig {
	return config.AgentConfig{
		Model:             "claude-sonnet-4-20250514",
		MaxTokens:         1024,
		APIKey:            "test-key",
		BaseURL:           baseURL,
		APITimeout:        5 * time.Second,
		RequestsPerSecond: 100,
	}
}

func TestClientExchangeWireShape(t *testing.T) {
	var got wireRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, encodingjson.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "I will click the button."},
				{"type": "tool_use", "id": "toolu_01", "name": "computer",
				 "input": {"action": "click", "coordinate": [640, 360]}}
			],
			"stop_reason": "tool_use"
		}`))
	}))
	defer server.Close()

	client := NewClient(testAgentConfig(server.URL), zaptest.NewLogger(t))
	defer client.httpClient.CloseIdleConnections()

	messages := []Message{
		{Role: RoleUser, Content: []ContentBlock{TextBlock("go click the button"), ImageBlock("cGl4ZWxz")}},
	}
	tools := []Tool{{Name: "computer", InputSchema: map[string]interface{}{"type": "object"}}}

	resp, err := client.Exchange(context.Background(), &ExchangeRequest{
		System:   "you are a tester",
		Messages: messages,
		Tools:    tools,
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-20250514", got.Model)
	assert.Equal(t, 1024, got.MaxTokens)
	assert.Equal(t, "you are a tester", got.System)
	if diff := cmp.Diff(messages, got.Messages); diff != "" {
		t.Errorf("messages did not survive the wire (-want +got):\n%s", diff)
	}
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "computer", got.Tools[0].Name)

	assert.Equal(t, "tool_use", resp.StopReason)
	inv := resp.FirstToolUse()
	require.NotNil(t, inv)
	assert.Equal(t, "toolu_01", inv.ID)
	assert.Equal(t, "computer", inv.Name)
	assert.Equal(t, "I will click the button.", resp.TextContent())

	var input computerInput
	require.NoError(t, encodingjson.Unmarshal(inv.Input, &input))
	assert.Equal(t, "click", input.Action)
	assert.Equal(t, []int{640, 360}, input.Coordinate)
}

func TestClientExchangeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "max_tokens is required"}}`))
	}))
	defer server.Close()

	client := NewClient(testAgentConfig(server.URL), zaptest.NewLogger(t))
	defer client.httpClient.CloseIdleConnections()

	_, err := client.Exchange(context.Background(), &ExchangeRequest{Messages: []Message{
		{Role: RoleUser, Content: []ContentBlock{TextBlock("hi")}},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid_request_error")
	assert.Contains(t, err.Error(), "max_tokens is required")
}

func TestClientExchangeRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels the request context; otherwise Close blocks forever.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(testAgentConfig(server.URL), zaptest.NewLogger(t))
	defer client.httpClient.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Exchange(ctx, &ExchangeRequest{Messages: []Message{
		{Role: RoleUser, Content: []ContentBlock{TextBlock("hi")}},
	}})
	require.Error(t, err)
}

func TestFirstToolUseNilWithoutInvocation(t *testing.T) {
	resp := &ExchangeResponse{Content: []ContentBlock{TextBlock("all done"), TextBlock("goal met")}}
	assert.Nil(t, resp.FirstToolUse())
	assert.Equal(t, "all done\ngoal met", resp.TextContent())
}

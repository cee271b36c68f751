// File: internal/agent/client.go
// Wire client for the remote vision agent. The protocol is the Anthropic
// Messages API: ordered conversation turns of typed content blocks, with
// tool_use blocks answered by tool_result blocks carrying the same id.
package agent

import (
	"bytes"
	"context"
	encodingjson "encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/argoseyes/uxprobe/internal/config"
)

const (
	anthropicVersion = "2023-06-01"
	messagesPath     = "/v1/messages"
)

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a single typed element of a turn: narrative text, an inline
// image, a tool invocation, or a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use fields.
	ID    string                  `json:"id,omitempty"`
	Name  string                  `json:"name,omitempty"`
	Input encodingjson.RawMessage `json:"input,omitempty"`

	// tool_result fields.
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`

	// image fields.
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource carries inline base64 image data.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// TextBlock builds a narrative text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ImageBlock builds an inline PNG image block from raw base64 data
// (no data-URI prefix).
func ImageBlock(b64 string) ContentBlock {
	return ContentBlock{
		Type:   "image",
		Source: &ImageSource{Type: "base64", MediaType: "image/png", Data: b64},
	}
}

// ToolResultBlock builds the paired result for a tool invocation. The id must
// echo the tool_use block that requested the action.
func ToolResultBlock(toolUseID string, inner []ContentBlock, isError bool) ContentBlock {
	return ContentBlock{
		Type:      "tool_result",
		ToolUseID: toolUseID,
		Content:   inner,
		IsError:   isError,
	}
}

// Tool describes one entry of the tool vocabulary offered to the agent.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ExchangeRequest is one round-trip to the remote agent.
type ExchangeRequest struct {
	System   string
	Messages []Message
	Tools    []Tool
}

// ExchangeResponse is the agent's reply.
type ExchangeResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// FirstToolUse returns the first tool_use block, or nil when the agent
// produced narration only. The loop processes at most one invocation per
// iteration.
func (r *ExchangeResponse) FirstToolUse() *ContentBlock {
	for i := range r.Content {
		if r.Content[i].Type == "tool_use" {
			return &r.Content[i]
		}
	}
	return nil
}

// TextContent concatenates all narrative text blocks in the reply.
func (r *ExchangeResponse) TextContent() string {
	var out string
	for _, block := range r.Content {
		if block.Type == "text" {
			if out != "" {
				out += "\n"
			}
			out += block.Text
		}
	}
	return out
}

// Exchanger abstracts the remote agent service so the loop can be driven by
// a stub in tests.
type Exchanger interface {
	Exchange(ctx context.Context, req *ExchangeRequest) (*ExchangeResponse, error)
}

// Client is the production Exchanger speaking the Messages wire format over
// HTTP.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	baseURL   string
	apiKey    string
	model     string
	maxTokens int
}

var _ Exchanger = (*Client)(nil)

// NewClient builds a Client from configuration.
func NewClient(cfg config.AgentConfig, logger *zap.Logger) *Client {
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.Named("agent_client"),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
	}
}

// wireRequest is the on-the-wire request envelope.
type wireRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Tools     []Tool    `json:"tools,omitempty"`
}

// wireError is the on-the-wire error envelope.
type wireError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Exchange performs one request/response round-trip with the remote agent.
// The limiter bounds the request rate across iterations.
func (c *Client) Exchange(ctx context.Context, req *ExchangeRequest) (*ExchangeResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(wireRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    req.System,
		Messages:  req.Messages,
		Tools:     req.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read agent response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr wireError
		if jsonErr := json.Unmarshal(respBody, &apiErr); jsonErr == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("agent returned %d (%s): %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out ExchangeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode agent response: %w", err)
	}

	c.logger.Debug("Agent exchange complete",
		zap.String("stop_reason", out.StopReason),
		zap.Int("blocks", len(out.Content)),
		zap.Duration("latency", time.Since(start)),
	)
	return &out, nil
}

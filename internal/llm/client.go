// Package llm is a minimal Anthropic Messages API client. Only the
// surface the chat and insight services need is modeled: text and
// tool-use content blocks, tool definitions, and a single-turn helper.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"cinescope/internal/config"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1/messages"
	apiVersion     = "2023-06-01"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = fmt.Errorf("llm client disabled: no API key configured")

// Tool describes a callable tool advertised to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ContentBlock is one element of a message. Type is "text", "tool_use",
// or "tool_result"; the other fields are populated per type.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"` // user or assistant
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a single-text-block message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: "text", Text: text}}}
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Tools     []Tool    `json:"tools,omitempty"`
}

// Response is the model's reply. StopReason "tool_use" means the content
// carries tool_use blocks that must be executed and fed back.
type Response struct {
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// Text concatenates all text blocks in the response.
func (r *Response) Text() string {
	var buf bytes.Buffer
	for _, block := range r.Content {
		if block.Type == "text" {
			buf.WriteString(block.Text)
		}
	}
	return buf.String()
}

// ToolUses returns the tool_use blocks, in order.
func (r *Response) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, block := range r.Content {
		if block.Type == "tool_use" {
			uses = append(uses, block)
		}
	}
	return uses
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the Anthropic Messages API.
type Client struct {
	apiKey     string
	model      string
	maxTokens  int
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an LLM client. A client with no API key is still
// usable for wiring; every call returns ErrDisabled.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		apiKey:     cfg.LLM.APIKey,
		model:      cfg.LLM.Model,
		maxTokens:  cfg.LLM.MaxTokens,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: cfg.LLM.Timeout},
		logger:     logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// SetBaseURL overrides the API endpoint. Used in tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Complete sends a single user prompt and returns the text reply.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.CompleteWithTools(ctx, system, []Message{TextMessage("user", prompt)}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// CompleteWithTools sends a full message history with optional tool
// definitions and returns the raw response.
func (c *Client) CompleteWithTools(ctx context.Context, system string, messages []Message, tools []Tool) (*Response, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	body, err := json.Marshal(request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  messages,
		Tools:     tools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read llm response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("llm api error (%d): %s", httpResp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("llm api error: status %d", httpResp.StatusCode)
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode llm response: %w", err)
	}

	c.logger.Debug("LLM completion finished",
		zap.String("stop_reason", resp.StopReason),
		zap.Int("content_blocks", len(resp.Content)))

	return &resp, nil
}

// Package anthropic implements the hosted Anthropic Messages API backend.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docsieve/docsieve/backend/internal/engine"
	"github.com/docsieve/docsieve/cache"
	"github.com/docsieve/docsieve/chat"
	"github.com/docsieve/docsieve/errors"
	"github.com/docsieve/docsieve/internal/httpclient"
	"github.com/docsieve/docsieve/retry"
)

const (
	// DefaultModel is the fallback model when none is configured.
	DefaultModel = "claude-sonnet-4-20250514"

	// DefaultBaseURL is the Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com/v1"

	// APIVersion is the required Anthropic API version header.
	APIVersion = "2023-06-01"
)

// Config holds Anthropic client configuration.
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	MaxTokens         int
	RequestsPerMinute int
	Cache             *cache.Store
	Retry             retry.Policy
	Logger            *zap.SugaredLogger
}

// Client is the Anthropic backend adapter.
type Client struct {
	engine     engine.Engine
	config     Config
	httpClient *http.Client
}

// NewClient creates an Anthropic backend. Missing credentials fail
// construction immediately; they are never retried.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Wrap(errors.ErrMissingCredentials,
			"Anthropic API key not configured (set api_key or ANTHROPIC_API_KEY)")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}

	return &Client{
		engine: engine.Engine{
			ID:      config.Model,
			Cache:   config.Cache,
			Retry:   config.Retry,
			Limiter: engine.NewLimiter(config.RequestsPerMinute),
			Logger:  config.Logger,
		},
		config:     config,
		httpClient: httpclient.New(120 * time.Second),
	}, nil
}

// ID identifies this backend in cache keys.
func (c *Client) ID() string { return c.engine.ID }

// Complete sends system and prompt text through the completion contract.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := c.CreateChatCompletion(ctx, chat.Conversation(system, prompt))
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// CreateChatCompletion runs the shared cache-first completion algorithm
// with the Messages API as the remote call.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []chat.Message) (chat.Message, error) {
	return c.engine.CreateChatCompletion(ctx, messages, c.call)
}

// messagesRequest is the Anthropic Messages API request shape.
type messagesRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	Messages  []chat.Message `json:"messages"`
	System    string         `json:"system,omitempty"`
}

// messagesResponse is the Anthropic Messages API response shape.
type messagesResponse struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
	Model   string         `json:"model"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func (c *Client) call(ctx context.Context, system, prompt string) (string, error) {
	reqBody, err := json.Marshal(messagesRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    system,
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", engine.WrapTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", engine.WrapTransport(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", engine.ClassifyStatus(resp.StatusCode, string(body))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal response")
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("no content blocks in response")
	}
	return strings.TrimSpace(parsed.Content[0].Text), nil
}

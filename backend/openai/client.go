// Package openai implements the hosted chat-completions backend. With an
// overridden base URL it also serves OpenAI-compatible local inference
// servers (Ollama, LocalAI).
package openai

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
	DefaultModel = "gpt-4o-mini"

	// DefaultBaseURL is the OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Config holds chat-completions client configuration.
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

// Client is the chat-completions backend adapter.
type Client struct {
	engine     engine.Engine
	config     Config
	httpClient *http.Client
}

// NewClient creates a chat-completions backend. Missing credentials fail
// construction immediately.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Wrap(errors.ErrMissingCredentials,
			"OpenAI API key not configured (set api_key or OPENAI_API_KEY)")
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
// with the chat-completions endpoint as the remote call.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []chat.Message) (chat.Message, error) {
	return c.engine.CreateChatCompletion(ctx, messages, c.call)
}

// completionRequest is the chat-completions request shape. Temperature is
// pinned to zero: extraction runs want determinism, and the response
// cache assumes a stable mapping from prompt to answer.
type completionRequest struct {
	Model       string         `json:"model"`
	Messages    []chat.Message `json:"messages"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature"`
	N           int            `json:"n"`
}

// completionResponse is the chat-completions response shape.
type completionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int          `json:"index"`
		Message      chat.Message `json:"message"`
		FinishReason string       `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Client) call(ctx context.Context, system, prompt string) (string, error) {
	reqBody, err := json.Marshal(completionRequest{
		Model:       c.config.Model,
		Messages:    chat.Conversation(system, prompt),
		MaxTokens:   c.config.MaxTokens,
		Temperature: 0,
		N:           1,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

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

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal response")
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

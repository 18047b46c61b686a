// Package script implements the external-process backend: completions are
// produced by a user-supplied executable that reads a JSON request
// envelope on stdin and writes the completion text to stdout.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/docsieve/docsieve/backend/internal/engine"
	"github.com/docsieve/docsieve/cache"
	"github.com/docsieve/docsieve/chat"
	"github.com/docsieve/docsieve/errors"
	"github.com/docsieve/docsieve/retry"
)

// Config holds external-process backend configuration.
type Config struct {
	// Path is the executable invoked per completion. Required.
	Path string

	// Model names the backend in cache keys. Defaults to the executable
	// base name.
	Model string

	Cache  *cache.Store
	Retry  retry.Policy
	Logger *zap.SugaredLogger
}

// Engine is the external-process backend adapter.
type Engine struct {
	engine engine.Engine
	config Config
}

// envelope is the JSON request written to the script's stdin. It carries
// the full message list plus the pre-joined system and prompt text so
// simple scripts need not walk the messages.
type envelope struct {
	Messages []chat.Message `json:"messages"`
	System   string         `json:"system"`
	Prompt   string         `json:"prompt"`
}

// New creates an external-process backend. A missing or nonexistent
// script path is a configuration error raised here, before any document
// is processed.
func New(config Config) (*Engine, error) {
	if config.Path == "" {
		return nil, errors.New(
			"external backend requires llm_script to be set in the configuration")
	}
	if _, err := os.Stat(config.Path); err != nil {
		return nil, errors.Wrapf(err, "llm_script %q not found", config.Path)
	}
	if config.Model == "" {
		config.Model = filepath.Base(config.Path)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}

	return &Engine{
		engine: engine.Engine{
			ID:     config.Model,
			Cache:  config.Cache,
			Retry:  config.Retry,
			Logger: config.Logger,
		},
		config: config,
	}, nil
}

// ID identifies this backend in cache keys.
func (e *Engine) ID() string { return e.engine.ID }

// Complete sends system and prompt text through the completion contract.
func (e *Engine) Complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := e.CreateChatCompletion(ctx, chat.Conversation(system, prompt))
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// CreateChatCompletion runs the shared cache-first completion algorithm
// with a subprocess execution as the remote call. A non-zero exit is a
// permanent error: script failures are assumed deterministic for a given
// input, so retrying would only repeat them.
func (e *Engine) CreateChatCompletion(ctx context.Context, messages []chat.Message) (chat.Message, error) {
	return e.engine.CreateChatCompletion(ctx, messages, func(ctx context.Context, system, prompt string) (string, error) {
		return e.run(ctx, messages, system, prompt)
	})
}

func (e *Engine) run(ctx context.Context, messages []chat.Message, system, prompt string) (string, error) {
	input, err := json.Marshal(envelope{
		Messages: messages,
		System:   system,
		Prompt:   prompt,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal script input")
	}

	cmd := exec.CommandContext(ctx, e.config.Path)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return "", errors.Wrapf(errors.ErrScriptExit, "%s: %v: %s", e.config.Path, err, detail)
	}
	return strings.TrimSpace(stdout.String()), nil
}

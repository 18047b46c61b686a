// Package backend selects and constructs text-generation backends. The
// three variants (hosted Anthropic Messages API, hosted chat-completions
// API, external process) share one capability contract: Complete, built
// from a cache-first, retry-wrapped chat completion.
package backend

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/docsieve/docsieve/backend/anthropic"
	"github.com/docsieve/docsieve/backend/openai"
	"github.com/docsieve/docsieve/backend/script"
	"github.com/docsieve/docsieve/cache"
	"github.com/docsieve/docsieve/chat"
	"github.com/docsieve/docsieve/errors"
	"github.com/docsieve/docsieve/retry"
)

// Completer is the capability contract every backend variant satisfies.
type Completer interface {
	// Complete produces the assistant text for one system+prompt pair.
	Complete(ctx context.Context, system, prompt string) (string, error)
	// ID identifies the backend in cache keys.
	ID() string
}

// ChatCompleter is the lower-level contract for callers that construct
// message lists themselves.
type ChatCompleter interface {
	Completer
	CreateChatCompletion(ctx context.Context, messages []chat.Message) (chat.Message, error)
}

// Kind is the closed set of backend variants. Selection happens once at
// run configuration time via ParseKind; nothing downstream inspects model
// strings.
type Kind int

const (
	KindAnthropic Kind = iota
	KindOpenAI
	KindScript
)

// String returns the canonical name of the variant.
func (k Kind) String() string {
	switch k {
	case KindAnthropic:
		return "anthropic"
	case KindOpenAI:
		return "openai"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// kindNames is the explicit mapping from configuration values to
// variants. The accepted aliases match the model names users historically
// put in their configuration files.
var kindNames = map[string]Kind{
	"anthropic": KindAnthropic,
	"claude":    KindAnthropic,
	"openai":    KindOpenAI,
	"gpt":       KindOpenAI,
	"chatgpt":   KindOpenAI,
	"script":    KindScript,
	"external":  KindScript,
	"local":     KindScript,
	"ollama":    KindScript,
}

// ParseKind maps a configuration value to a backend variant. The value is
// matched whole (lowercased) or by its leading word before a separator,
// so "claude-3-5-sonnet" selects the Anthropic variant.
func ParseKind(s string) (Kind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if k, ok := kindNames[v]; ok {
		return k, nil
	}
	if i := strings.IndexAny(v, "-_. /"); i > 0 {
		if k, ok := kindNames[v[:i]]; ok {
			return k, nil
		}
	}
	return 0, errors.Newf("unknown backend %q (valid: anthropic, claude, openai, gpt, chatgpt, external, local, ollama, script)", s)
}

// Config carries everything needed to construct any variant.
type Config struct {
	Kind              Kind
	Model             string
	APIKey            string
	BaseURL           string
	ScriptPath        string
	MaxTokens         int
	RequestsPerMinute int
	Cache             *cache.Store
	Retry             retry.Policy
	Logger            *zap.SugaredLogger
}

// New constructs the backend for cfg.Kind. Construction validates
// credentials and script paths; failures here are fatal configuration
// errors, raised before any document is processed.
func New(cfg Config) (Completer, error) {
	switch cfg.Kind {
	case KindAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			MaxTokens:         cfg.MaxTokens,
			RequestsPerMinute: cfg.RequestsPerMinute,
			Cache:             cfg.Cache,
			Retry:             cfg.Retry,
			Logger:            cfg.Logger,
		})
	case KindOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			MaxTokens:         cfg.MaxTokens,
			RequestsPerMinute: cfg.RequestsPerMinute,
			Cache:             cfg.Cache,
			Retry:             cfg.Retry,
			Logger:            cfg.Logger,
		})
	case KindScript:
		return script.New(script.Config{
			Path:   cfg.ScriptPath,
			Model:  cfg.Model,
			Cache:  cfg.Cache,
			Retry:  cfg.Retry,
			Logger: cfg.Logger,
		})
	default:
		return nil, errors.Newf("unknown backend kind %d", cfg.Kind)
	}
}

// Verify interfaces are implemented.
var (
	_ ChatCompleter = (*anthropic.Client)(nil)
	_ ChatCompleter = (*openai.Client)(nil)
	_ ChatCompleter = (*script.Engine)(nil)
)

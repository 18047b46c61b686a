// Package engine implements the completion algorithm shared by every
// backend adapter: derive system and prompt text from the message list,
// consult the response cache, and only on a miss invoke the
// provider-specific remote call wrapped by the retry policy.
package engine

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/docsieve/docsieve/cache"
	"github.com/docsieve/docsieve/chat"
	"github.com/docsieve/docsieve/errors"
	"github.com/docsieve/docsieve/retry"
)

// Caller performs one provider-specific remote call and returns the raw
// completion text.
type Caller func(ctx context.Context, system, prompt string) (string, error)

// Engine holds the pieces common to all backend adapters.
type Engine struct {
	// ID identifies the backend in cache keys. Callers must change it
	// whenever they change backend configuration that affects responses.
	ID string

	Cache   *cache.Store
	Retry   retry.Policy
	Limiter *rate.Limiter // optional requests-per-minute bound
	Logger  *zap.SugaredLogger
}

// CreateChatCompletion runs the shared algorithm over the given messages,
// delegating the remote call to call. The returned message always has
// role assistant.
func (e *Engine) CreateChatCompletion(ctx context.Context, messages []chat.Message, call Caller) (chat.Message, error) {
	system := chat.SystemText(messages)
	prompt := chat.UserText(messages)

	if cached, ok, err := e.Cache.Get(e.ID, system, prompt); err != nil {
		return chat.Message{}, err
	} else if ok {
		return cached, nil
	}

	var content string
	err := e.Retry.Do(ctx, func() error {
		if e.Limiter != nil {
			if err := e.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var callErr error
		content, callErr = call(ctx, system, prompt)
		return callErr
	})
	if err != nil {
		return chat.Message{}, err
	}

	msg := chat.Message{Role: chat.RoleAssistant, Content: content}
	if err := e.Cache.Put(e.ID, system, prompt, msg); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

// ClassifyStatus maps an HTTP response status to the error taxonomy:
// 429 and 5xx are transient, everything else is a permanent request
// error.
func ClassifyStatus(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrRateLimited, "status %d: %s", status, body)
	case status >= 500:
		return errors.Wrapf(errors.ErrServerError, "status %d: %s", status, body)
	default:
		return errors.Newf("request failed with status %d: %s", status, body)
	}
}

// WrapTransport maps transport-level failures (connection errors,
// timeouts) to the transient taxonomy so the retry policy picks them up.
func WrapTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(errors.ErrTimeout, "%v", err)
	}
	return errors.Wrapf(errors.ErrUnavailable, "%v", err)
}

// NewLimiter converts a requests-per-minute bound into a rate limiter.
// Zero or negative means unlimited (nil).
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
}

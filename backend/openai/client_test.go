package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsieve/docsieve/errors"
	testutil "github.com/docsieve/docsieve/internal/testing"
	"github.com/docsieve/docsieve/retry"
)

func completionJSON(content string) string {
	return `{"id":"cmpl-1","model":"test","choices":[{"index":0,"message":{"role":"assistant","content":"` + content + `"},"finish_reason":"stop"}]}`
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingCredentials))
}

func TestCompleteSendsRequest(t *testing.T) {
	var gotAuth string
	var gotReq completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(completionJSON("42")))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		APIKey:  "sk-test",
		Model:   "test-model",
		BaseURL: srv.URL,
		Cache:   testutil.CreateTestCache(t),
		Retry:   testPolicy(),
	})
	require.NoError(t, err)

	answer, err := client.Complete(context.Background(), "be terse", "how many?")
	require.NoError(t, err)
	assert.Equal(t, "42", answer)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "test-model", gotReq.Model)
	assert.Equal(t, float64(0), gotReq.Temperature)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "be terse", gotReq.Messages[0].Content)
	assert.Equal(t, "how many?", gotReq.Messages[1].Content)
}

func TestCompleteIsCachedAcrossCalls(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(completionJSON("cached answer")))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Cache:   testutil.CreateTestCache(t),
		Retry:   testPolicy(),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		answer, err := client.Complete(context.Background(), "sys", "same prompt")
		require.NoError(t, err)
		assert.Equal(t, "cached answer", answer)
	}
	assert.EqualValues(t, 1, hits.Load(), "identical requests must hit the remote exactly once")

	// A different prompt is a distinct entry.
	_, err = client.Complete(context.Background(), "sys", "other prompt")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestCompleteRetriesRateLimit(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionJSON("eventually")))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Cache:   testutil.CreateTestCache(t),
		Retry:   testPolicy(),
	})
	require.NoError(t, err)

	answer, err := client.Complete(context.Background(), "sys", "p")
	require.NoError(t, err)
	assert.Equal(t, "eventually", answer)
	assert.EqualValues(t, 2, hits.Load())
}

func TestCompleteDoesNotRetryClientError(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Cache:   testutil.CreateTestCache(t),
		Retry:   testPolicy(),
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "sys", "p")
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load(), "client errors must not be retried")
}

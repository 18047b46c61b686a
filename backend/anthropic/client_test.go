package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsieve/docsieve/errors"
	testutil "github.com/docsieve/docsieve/internal/testing"
	"github.com/docsieve/docsieve/retry"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingCredentials))
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.ID())
}

func TestCompleteSendsMessagesRequest(t *testing.T) {
	var gotVersion, gotKey string
	var gotReq messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"  the answer  "}],"model":"m"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		APIKey:  "sk-ant",
		Model:   "test-model",
		BaseURL: srv.URL,
		Cache:   testutil.CreateTestCache(t),
		Retry:   retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond},
	})
	require.NoError(t, err)

	answer, err := client.Complete(context.Background(), "system text", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)

	assert.Equal(t, APIVersion, gotVersion)
	assert.Equal(t, "sk-ant", gotKey)
	assert.Equal(t, "system text", gotReq.System)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user prompt", gotReq.Messages[0].Content)
}

package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsieve/docsieve/errors"
	testutil "github.com/docsieve/docsieve/internal/testing"
	"github.com/docsieve/docsieve/retry"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backend.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond}
}

func TestNewRequiresExistingScript(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Path: "/no/such/script"})
	require.Error(t, err)
}

func TestIDDefaultsToScriptName(t *testing.T) {
	path := writeScript(t, "cat > /dev/null; echo ok")
	e, err := New(Config{Path: path, Cache: testutil.CreateTestCache(t), Retry: testPolicy()})
	require.NoError(t, err)
	assert.Equal(t, "backend.sh", e.ID())
}

func TestCompleteReadsStdout(t *testing.T) {
	// jq-free envelope check: the script just proves it received JSON on
	// stdin by echoing a fixed reply.
	path := writeScript(t, `grep '"prompt"' > /dev/null && echo "  scripted answer  "`)
	e, err := New(Config{Path: path, Model: "local", Cache: testutil.CreateTestCache(t), Retry: testPolicy()})
	require.NoError(t, err)

	answer, err := e.Complete(context.Background(), "sys", "what?")
	require.NoError(t, err)
	assert.Equal(t, "scripted answer", answer)
}

func TestCompleteCachesResults(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "count")
	path := writeScript(t, `cat > /dev/null; echo x >> `+counter+`; echo reply`)
	e, err := New(Config{Path: path, Cache: testutil.CreateTestCache(t), Retry: testPolicy()})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		answer, err := e.Complete(context.Background(), "s", "p")
		require.NoError(t, err)
		assert.Equal(t, "reply", answer)
	}

	data, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(data), "script must run exactly once for identical input")
}

func TestCompleteNonZeroExitIsPermanent(t *testing.T) {
	path := writeScript(t, `cat > /dev/null; echo "boom" >&2; exit 3`)
	e, err := New(Config{Path: path, Cache: testutil.CreateTestCache(t), Retry: retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond}})
	require.NoError(t, err)

	_, err = e.Complete(context.Background(), "s", "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrScriptExit))
	assert.Contains(t, err.Error(), "boom")
}

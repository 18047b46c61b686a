package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsieve/docsieve/chat"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("model-a", "system", "prompt")
	k2 := Key("model-a", "system", "prompt")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
}

func TestKeySensitivity(t *testing.T) {
	base := Key("model-a", "system", "prompt")

	assert.NotEqual(t, base, Key("model-b", "system", "prompt"))
	assert.NotEqual(t, base, Key("model-a", "system ", "prompt"))
	assert.NotEqual(t, base, Key("model-a", "system", "prompt "))
	assert.NotEqual(t, base, Key("model-a", "system", "Prompt"))
}

func TestGetMiss(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.Get("m", "s", "p")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutGetRoundtrip(t *testing.T) {
	store := openTestStore(t)

	msg := chat.Message{Role: chat.RoleAssistant, Content: "the answer"}
	require.NoError(t, store.Put("m", "s", "p", msg))

	got, ok, err := store.Get("m", "s", "p")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, msg, got)

	// Different prompt text misses.
	_, ok, err = store.Get("m", "s", "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutOverwrites(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Put("m", "s", "p", chat.Message{Role: chat.RoleAssistant, Content: "first"}))
	require.NoError(t, store.Put("m", "s", "p", chat.Message{Role: chat.RoleAssistant, Content: "second"}))

	got, ok, err := store.Get("m", "s", "p")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got.Content)

	count, err := store.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestStatsAndClear(t *testing.T) {
	store := openTestStore(t)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put("m", "s", p, chat.Message{Role: chat.RoleAssistant, Content: p}))
	}

	count, err := store.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	require.NoError(t, store.Clear())
	count, err = store.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestPersistence(t *testing.T) {
	path := t.TempDir() + "/responses.db"

	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Put("m", "s", "p", chat.Message{Role: chat.RoleAssistant, Content: "kept"}))
	require.NoError(t, store.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get("m", "s", "p")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "kept", got.Content)
}

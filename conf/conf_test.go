package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeConfig(t, "config.csv",
		"model,claude\n"+
			"max_docs,10\n"+
			"ids,38100000,PMC123,PMC456\n"+
			"question,Does the paper mention [topic]?\n")
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "claude", s.GetString("model", ""))
	assert.Equal(t, 10, s.GetInt("max_docs", 0))
	assert.Equal(t, []string{"38100000", "PMC123", "PMC456"}, s.GetStrings("ids"))
	assert.Equal(t, "Does the paper mention [topic]?", s.GetString("question", ""))
	assert.Equal(t, "fallback", s.GetString("missing", "fallback"))
}

func TestLoadCSVRaggedRows(t *testing.T) {
	path := writeConfig(t, "config.csv",
		"a,1\n"+
			"b,1,2,3\n"+
			"empty\n")
	s, err := Load(path)
	require.NoError(t, err)

	assert.False(t, mustGet(t, s, "a").IsList())
	assert.True(t, mustGet(t, s, "b").IsList())
	assert.Equal(t, "", s.GetString("empty", "def"))
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json",
		`{"model": "gpt", "max_docs": 5, "ids": ["1", "2"]}`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt", s.GetString("model", ""))
	assert.Equal(t, 5, s.GetInt("max_docs", 0))
	assert.Equal(t, []string{"1", "2"}, s.GetStrings("ids"))
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config.toml",
		"model = \"claude\"\nmax_docs = 7\n")
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "claude", s.GetString("model", ""))
	assert.Equal(t, 7, s.GetInt("max_docs", 0))
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeConfig(t, "config.ini", "a=1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/no/such/config.csv")
	assert.Error(t, err)
}

func TestPathKeysResolveAgainstConfigDir(t *testing.T) {
	path := writeConfig(t, "config.csv",
		"scripts_folder,scripts\n"+
			"steps_file,steps.yaml\n"+
			"plain,notapath\n")
	s, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, filepath.Join(dir, "scripts"), s.GetString("scripts_folder", ""))
	assert.Equal(t, filepath.Join(dir, "steps.yaml"), s.GetString("steps_file", ""))
	assert.Equal(t, "notapath", s.GetString("plain", ""))
	assert.Equal(t, dir, s.GetString("config_root", ""))
}

func TestResolvePath(t *testing.T) {
	s := NewStore(nil, "/base")
	assert.Equal(t, "/base/rel", s.ResolvePath("rel"))
	assert.Equal(t, "/abs/path", s.ResolvePath("/abs/path"))
	assert.Equal(t, "", s.ResolvePath(""))
}

func TestKeysPreserveOrder(t *testing.T) {
	path := writeConfig(t, "config.csv", "z,1\na,2\nm,3\n")
	s, err := Load(path)
	require.NoError(t, err)
	// config_root is recorded first, then file order.
	assert.Equal(t, []string{"config_root", "z", "a", "m"}, s.Keys())
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.csv", "model,from-file\n")
	s, err := Load(path)
	require.NoError(t, err)

	t.Setenv("DOCSIEVE_MODEL", "from-env")
	assert.Equal(t, "from-env", s.GetString("model", ""))
}

func mustGet(t *testing.T, s *Store, key string) Value {
	t.Helper()
	v, ok := s.Get(key)
	require.True(t, ok, "key %s", key)
	return v
}

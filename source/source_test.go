package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCorpusID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"38100000", true},
		{"1", true},
		{"PMC123456", true},
		{"PMC", false},
		{"pmc123", false},
		{"paper.txt", false},
		{"123abc", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCorpusID(tt.id))
		})
	}
}

func TestFetchLocalPlainText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "paper.txt"), []byte("the full text"), 0o644))

	l := New(Config{FilesDir: dir})
	doc, err := l.Fetch(context.Background(), "paper.txt")
	require.NoError(t, err)

	assert.Equal(t, "the full text", doc.Text)
	assert.Equal(t, map[string]string{"paper": "the full text"}, doc.Sections)
}

func TestFetchLocalJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "paper.json"),
		[]byte(`{"text": "full", "sections": {"abstract": "short", "methods": "how"}}`), 0o644))

	l := New(Config{FilesDir: dir})
	doc, err := l.Fetch(context.Background(), "paper.json")
	require.NoError(t, err)

	assert.Equal(t, "full", doc.Text)
	assert.Equal(t, "short", doc.Sections["abstract"])
	assert.Equal(t, "how", doc.Sections["methods"])
}

func TestFetchLocalJSONReconstructsText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "paper.json"),
		[]byte(`{"sections": {"a": "first", "b": "second"}}`), 0o644))

	l := New(Config{FilesDir: dir})
	doc, err := l.Fetch(context.Background(), "paper.json")
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", doc.Text)
}

func TestFetchMissingLocalFile(t *testing.T) {
	l := New(Config{FilesDir: t.TempDir()})
	_, err := l.Fetch(context.Background(), "absent.txt")
	assert.Error(t, err)
}

func TestFetchCorpusHTTP(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/PMC123", r.URL.Path)
		w.Write([]byte(`{"text": "remote text", "sections": {"paper": "remote text"}}`))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	l := New(Config{CorpusURL: srv.URL, DataCacheDir: cacheDir})

	doc, err := l.Fetch(context.Background(), "PMC123")
	require.NoError(t, err)
	assert.Equal(t, "remote text", doc.Text)

	// Second fetch is served from the document cache.
	doc, err = l.Fetch(context.Background(), "PMC123")
	require.NoError(t, err)
	assert.Equal(t, "remote text", doc.Text)
	assert.EqualValues(t, 1, hits.Load())

	_, err = os.Stat(filepath.Join(cacheDir, "PMC123.json"))
	assert.NoError(t, err)
}

func TestFetchCorpusHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := New(Config{CorpusURL: srv.URL})
	_, err := l.Fetch(context.Background(), "404404")
	assert.Error(t, err)
}

func TestFetchCorpusWithoutURL(t *testing.T) {
	l := New(Config{})
	_, err := l.Fetch(context.Background(), "38100000")
	assert.Error(t, err)
}

func TestFetchViaScript(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fetch.sh")
	require.NoError(t, os.WriteFile(script,
		[]byte("#!/bin/sh\necho '{\"text\": \"scripted\", \"sections\": {\"paper\": \"scripted\"}}'\n"), 0o755))

	l := New(Config{FetchScript: script})
	doc, err := l.Fetch(context.Background(), "98765")
	require.NoError(t, err)
	assert.Equal(t, "scripted", doc.Text)
}

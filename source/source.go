// Package source acquires documents for the pipeline: from a per-document
// JSON cache, from a remote corpus over HTTP, from an external fetch
// script, or from local text/JSON files. The pipeline only ever sees the
// normalized {text, sections} document shape.
package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/docsieve/docsieve/errors"
	"github.com/docsieve/docsieve/internal/httpclient"
	"github.com/docsieve/docsieve/pipeline"
)

// Config configures a Loader.
type Config struct {
	// DataCacheDir caches fetched documents as <id>.json so re-runs
	// never re-fetch.
	DataCacheDir string

	// FilesDir resolves identifiers that name local files.
	FilesDir string

	// CorpusURL is the remote corpus endpoint; the document identifier
	// is appended. The response must be the {text, sections} JSON shape.
	CorpusURL string

	// FetchScript, when set, is invoked with the identifier appended as
	// its final argument instead of the HTTP corpus; it must print the
	// document JSON to stdout. The value is a command line, so an
	// interpreter prefix like "python3 fetch.py" works.
	FetchScript string

	Logger *zap.SugaredLogger
}

// Loader fetches documents by identifier. It implements
// pipeline.Fetcher.
type Loader struct {
	config     Config
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// New creates a document loader.
func New(config Config) *Loader {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Loader{
		config:     config,
		httpClient: httpclient.New(60 * time.Second),
		logger:     logger,
	}
}

// Fetch returns the document for id, consulting the JSON cache first.
func (l *Loader) Fetch(ctx context.Context, id string) (pipeline.Document, error) {
	cachePath := ""
	if l.config.DataCacheDir != "" {
		cachePath = filepath.Join(l.config.DataCacheDir, filepath.Base(id)+".json")
		if doc, err := readDocumentFile(cachePath); err == nil {
			return doc, nil
		}
	}

	var (
		doc pipeline.Document
		err error
	)
	if IsCorpusID(id) {
		if l.config.FetchScript != "" {
			doc, err = l.fetchViaScript(ctx, id)
		} else {
			doc, err = l.fetchViaHTTP(ctx, id)
		}
	} else {
		doc, err = l.readLocal(id)
	}
	if err != nil {
		return pipeline.Document{}, err
	}

	if cachePath != "" {
		if err := writeDocumentFile(cachePath, doc); err != nil {
			l.logger.Warnw("Failed to cache document", "document", id, "error", err)
		}
	}
	return doc, nil
}

// IsCorpusID reports whether id names a remote corpus document: all
// digits, or a PMC prefix followed by digits.
func IsCorpusID(id string) bool {
	s := id
	if strings.HasPrefix(s, "PMC") {
		s = s[3:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (l *Loader) fetchViaHTTP(ctx context.Context, id string) (pipeline.Document, error) {
	if l.config.CorpusURL == "" {
		return pipeline.Document{}, errors.Newf(
			"document %s looks like a corpus ID but no corpus_url is configured", id)
	}

	url := strings.TrimSuffix(l.config.CorpusURL, "/") + "/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pipeline.Document{}, errors.Wrap(err, "failed to create corpus request")
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return pipeline.Document{}, errors.Wrapf(err, "corpus fetch failed for %s", id)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.Document{}, errors.Wrapf(err, "corpus read failed for %s", id)
	}
	if resp.StatusCode != http.StatusOK {
		return pipeline.Document{}, errors.Newf(
			"corpus fetch for %s failed with status %d", id, resp.StatusCode)
	}
	return decodeDocument(body)
}

func (l *Loader) fetchViaScript(ctx context.Context, id string) (pipeline.Document, error) {
	argv, err := shellquote.Split(l.config.FetchScript)
	if err != nil {
		return pipeline.Document{}, errors.Wrapf(err, "malformed fetch_script %q", l.config.FetchScript)
	}
	if len(argv) == 0 {
		return pipeline.Document{}, errors.New("empty fetch_script")
	}

	out, err := exec.CommandContext(ctx, argv[0], append(argv[1:], id)...).Output()
	if err != nil {
		return pipeline.Document{}, errors.Wrapf(err, "fetch script failed for %s", id)
	}
	return decodeDocument(out)
}

// readLocal resolves id against the files folder and reads it as a
// document: JSON files carry the {text, sections} shape, anything else
// is plain text seeding a single "paper" section.
func (l *Loader) readLocal(id string) (pipeline.Document, error) {
	path := id
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.config.FilesDir, id)
	}
	if _, err := os.Stat(path); err != nil {
		return pipeline.Document{}, errors.Wrapf(err, "file not found: %s", path)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return readDocumentFile(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Document{}, errors.Wrapf(err, "cannot read %s", path)
	}
	text := string(data)
	return pipeline.Document{
		Text:     text,
		Sections: map[string]string{"paper": text},
	}, nil
}

func readDocumentFile(path string) (pipeline.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Document{}, errors.Wrapf(err, "cannot read %s", path)
	}
	return decodeDocument(data)
}

// decodeDocument parses the {text, sections} JSON shape. A missing text
// field is reconstructed by concatenating the section texts.
func decodeDocument(data []byte) (pipeline.Document, error) {
	var doc pipeline.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return pipeline.Document{}, errors.Wrap(err, "malformed document JSON")
	}
	if doc.Text == "" && len(doc.Sections) > 0 {
		names := make([]string, 0, len(doc.Sections))
		for name := range doc.Sections {
			names = append(names, name)
		}
		sort.Strings(names)
		var b strings.Builder
		for _, name := range names {
			b.WriteString(doc.Sections[name])
			b.WriteString("\n")
		}
		doc.Text = b.String()
	}
	if doc.Sections == nil {
		doc.Sections = map[string]string{"paper": doc.Text}
	}
	return doc, nil
}

func writeDocumentFile(path string, doc pipeline.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "cannot create document cache directory")
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "cannot encode document")
	}
	return os.WriteFile(path, data, 0o644)
}

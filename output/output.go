// Package output writes extraction results to CSV and JSON files,
// including sibling debug files holding the full variable state of each
// run. Cells are normalized so rows survive spreadsheet round-trips:
// every field is quoted, embedded double quotes are stripped, and
// newline variants are flattened.
package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/docsieve/docsieve/errors"
)

// MaxCellLength bounds any single CSV cell.
const MaxCellLength = 10000

// newlineReplacer flattens every newline variant into a visible marker.
// The two-character sequence goes first so it is not rewritten twice.
var newlineReplacer = strings.NewReplacer(
	"\r\n", " \\n ",
	"\r", " \\n ",
	"\n", " \\n ",
	"\v", " \\n ",
	"\f", " \\n ",
	"", " \\n ",
	" ", " \\n ",
	" ", " \\n ",
)

// Writer persists results next to a base output file: for out/results.csv
// it maintains results.csv, results.json, results_debug.csv and
// results_debug.json. It implements pipeline.Sink.
type Writer struct {
	csvPath       string
	jsonPath      string
	debugCSVPath  string
	debugJSONPath string
	idColumn      string
	resultRows    *rowOrder
	debugRows     *rowOrder
	logger        *zap.SugaredLogger
}

// rowOrder remembers the order document IDs first appeared across
// flushes, so CSV rows mirror processing order rather than map order.
type rowOrder struct {
	ids  []string
	seen map[string]bool
}

func newRowOrder() *rowOrder {
	return &rowOrder{seen: make(map[string]bool)}
}

// update folds any new IDs into the remembered order (new IDs within a
// single flush sorted for determinism) and returns the full order.
func (o *rowOrder) update(rows map[string]map[string]string) []string {
	var added []string
	for id := range rows {
		if !o.seen[id] {
			added = append(added, id)
		}
	}
	sort.Strings(added)
	for _, id := range added {
		o.seen[id] = true
		o.ids = append(o.ids, id)
	}
	return o.ids
}

// NewWriter creates a Writer for the given output file path. idColumn
// names the identifier column in the CSV header.
func NewWriter(path, idColumn string, logger *zap.SugaredLogger) (*Writer, error) {
	if path == "" {
		return nil, errors.New("output path is required")
	}
	if idColumn == "" {
		idColumn = "id"
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "cannot create output directory")
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".csv"
	}
	return &Writer{
		csvPath:       stem + ext,
		jsonPath:      stem + ".json",
		debugCSVPath:  stem + "_debug" + ext,
		debugJSONPath: stem + "_debug.json",
		idColumn:      idColumn,
		resultRows:    newRowOrder(),
		debugRows:     newRowOrder(),
		logger:        logger,
	}, nil
}

// Flush rewrites all four output files from the accumulated results.
// Results and debug each carry one row per document; columns lists the
// result columns in first-recorded order, any stragglers follow sorted.
func (w *Writer) Flush(results map[string]map[string]string, columns []string, debug map[string]map[string]string) error {
	if err := w.writeCSV(w.csvPath, results, columns, w.resultRows.update(results)); err != nil {
		return err
	}
	if err := writeJSON(w.jsonPath, results); err != nil {
		return err
	}
	if err := w.writeCSV(w.debugCSVPath, debug, nil, w.debugRows.update(debug)); err != nil {
		return err
	}
	return writeJSON(w.debugJSONPath, debug)
}

func (w *Writer) writeCSV(path string, rows map[string]map[string]string, ordered, ids []string) error {
	columns := orderColumns(rows, ordered)

	var b strings.Builder
	writeRecord(&b, w.idColumn, columns, nil)
	for _, id := range ids {
		if row, ok := rows[id]; ok {
			writeRecord(&b, id, columns, row)
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}
	return nil
}

// writeRecord appends one fully quoted CSV record. With a nil row the
// column names themselves are written, producing the header.
func writeRecord(b *strings.Builder, first string, columns []string, row map[string]string) {
	b.WriteString(quoteCell(first))
	for _, col := range columns {
		b.WriteString(",")
		if row == nil {
			b.WriteString(quoteCell(col))
		} else {
			b.WriteString(quoteCell(row[col]))
		}
	}
	b.WriteString("\n")
}

// orderColumns returns the union of row columns: the ordered prefix
// first (those actually present), then the rest sorted.
func orderColumns(rows map[string]map[string]string, ordered []string) []string {
	present := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			present[col] = true
		}
	}

	columns := make([]string, 0, len(present))
	taken := make(map[string]bool)
	for _, col := range ordered {
		if present[col] && !taken[col] {
			columns = append(columns, col)
			taken[col] = true
		}
	}
	var rest []string
	for col := range present {
		if !taken[col] {
			rest = append(rest, col)
		}
	}
	sort.Strings(rest)
	return append(columns, rest...)
}

// quoteCell normalizes a value and wraps it in double quotes. Stripping
// embedded quotes beforehand keeps the quoting trivial.
func quoteCell(value string) string {
	if len(value) > MaxCellLength {
		value = value[:MaxCellLength]
	}
	value = strings.ReplaceAll(value, `"`, "")
	value = newlineReplacer.Replace(value)
	return `"` + value + `"`
}

func writeJSON(path string, rows map[string]map[string]string) error {
	if rows == nil {
		rows = map[string]map[string]string{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return errors.Wrap(err, "cannot encode results")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}
	return nil
}

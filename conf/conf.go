// Package conf implements the flat key-value settings store driving a
// workflow run. Settings load from a CSV (rows of key, value...), a JSON
// object, or a TOML file; keys whose names end in folder, root, path, or
// file have their values resolved to absolute paths against the
// configuration file's directory. Environment variables with the
// DOCSIEVE_ prefix override file values.
package conf

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/docsieve/docsieve/errors"
)

// Value is a closed variant: either a single scalar or an ordered list.
type Value struct {
	scalar string
	list   []string
	isList bool
}

// Scalar wraps a single text value.
func Scalar(s string) Value { return Value{scalar: s} }

// List wraps an ordered sequence of text values.
func List(items ...string) Value { return Value{list: items, isList: true} }

// IsList reports whether the value is the list variant.
func (v Value) IsList() bool { return v.isList }

// String returns the scalar value, or the first element of a list.
func (v Value) String() string {
	if v.isList {
		if len(v.list) == 0 {
			return ""
		}
		return v.list[0]
	}
	return v.scalar
}

// Strings returns the list value, or a one-element list for a scalar.
func (v Value) Strings() []string {
	if v.isList {
		return v.list
	}
	if v.scalar == "" {
		return nil
	}
	return []string{v.scalar}
}

// Store is the loaded settings map.
type Store struct {
	values map[string]Value
	order  []string
	root   string
	env    *viper.Viper
}

// Load reads a settings file, dispatching on extension (.csv, .json,
// .toml).
func Load(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve config path %q", path)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, errors.Wrapf(err, "configuration file not found: %s", path)
	}

	s := &Store{
		values: make(map[string]Value),
		root:   filepath.Dir(abs),
		env:    newEnv(),
	}
	s.set("config_root", Scalar(s.root))

	switch strings.ToLower(filepath.Ext(abs)) {
	case ".csv":
		err = s.loadCSV(abs)
	case ".json":
		err = s.loadJSON(abs)
	case ".toml":
		err = s.loadTOML(abs)
	default:
		return nil, errors.Newf("unsupported configuration format %q", filepath.Ext(abs))
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewStore builds a store from an in-memory map, for tests and embedding.
func NewStore(values map[string]Value, root string) *Store {
	s := &Store{values: make(map[string]Value), root: root, env: newEnv()}
	for k, v := range values {
		s.set(k, v)
	}
	return s
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DOCSIEVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func (s *Store) set(key string, v Value) {
	if _, seen := s.values[key]; !seen {
		s.order = append(s.order, key)
	}
	s.values[key] = v
}

func (s *Store) loadCSV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "error reading CSV config file %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "error reading CSV config file %s", path)
		}
		s.addRow(row)
	}
	return nil
}

func (s *Store) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "error reading JSON config file %s", path)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrapf(err, "config must be a JSON object (key-value mapping): %s", path)
	}
	for key, value := range raw {
		row := []string{key}
		switch v := value.(type) {
		case []interface{}:
			for _, item := range v {
				row = append(row, stringify(item))
			}
		default:
			row = append(row, stringify(v))
		}
		s.addRow(row)
	}
	return nil
}

func (s *Store) loadTOML(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "error reading TOML config file %s", path)
	}
	for _, key := range v.AllKeys() {
		row := []string{key}
		switch val := v.Get(key).(type) {
		case []interface{}:
			for _, item := range val {
				row = append(row, stringify(item))
			}
		default:
			row = append(row, stringify(val))
		}
		s.addRow(row)
	}
	return nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// addRow ingests one (key, values...) row, dropping empty cells and
// resolving path-like keys to absolute paths.
func (s *Store) addRow(row []string) {
	if len(row) == 0 {
		return
	}
	key := strings.TrimSpace(row[0])
	if key == "" {
		return
	}

	var values []string
	for _, cell := range row[1:] {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if isPathKey(key) {
			cell = s.ResolvePath(cell)
		}
		values = append(values, cell)
	}

	switch len(values) {
	case 0:
		s.set(key, Scalar(""))
	case 1:
		s.set(key, Scalar(values[0]))
	default:
		s.set(key, List(values...))
	}
}

func isPathKey(key string) bool {
	k := strings.ToLower(key)
	for _, suffix := range []string{"folder", "root", "path", "file"} {
		if strings.HasSuffix(k, suffix) {
			return true
		}
	}
	return false
}

// Get returns the value for key, with ok=false when absent. Environment
// variables (DOCSIEVE_<KEY>) take precedence over file values.
func (s *Store) Get(key string) (Value, bool) {
	if ev := s.env.GetString(key); ev != "" {
		return Scalar(ev), true
	}
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the scalar text for key, or def when absent.
func (s *Store) GetString(key, def string) string {
	if v, ok := s.Get(key); ok {
		return v.String()
	}
	return def
}

// GetStrings returns the list for key, nil when absent.
func (s *Store) GetStrings(key string) []string {
	if v, ok := s.Get(key); ok {
		return v.Strings()
	}
	return nil
}

// GetInt returns the integer for key, or def when absent or malformed.
func (s *Store) GetInt(key string, def int) int {
	if v, ok := s.Get(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v.String())); err == nil {
			return n
		}
	}
	return def
}

// Keys returns every key in first-seen order.
func (s *Store) Keys() []string {
	return append([]string(nil), s.order...)
}

// ResolvePath converts a relative path to an absolute one rooted at the
// configuration file's directory.
func (s *Store) ResolvePath(path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.root, path)
}

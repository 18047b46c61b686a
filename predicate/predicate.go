// Package predicate implements the named boolean tests used to gate
// pipeline steps. Every predicate is pure and total over arbitrary text:
// malformed input yields false, never a panic.
package predicate

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// Func is a predicate over a text answer plus an optional parameter.
type Func func(answer, param string) bool

// Registry maps case-sensitive predicate names to functions. Callers may
// overlay run-scoped predicates (the pipeline registers is_script_error as
// a closure over its context).
type Registry map[string]Func

// Default returns a fresh registry with the built-in predicates under
// their canonical names and aliases.
func Default() Registry {
	return Registry{
		"is_yes":                      IsYes,
		"yes":                         IsYes,
		"is_no":                       IsNo,
		"no":                          IsNo,
		"is_number":                   IsNumber,
		"number":                      IsNumber,
		"is_not_number":               notOf(IsNumber),
		"is_json":                     IsJSON,
		"json":                        IsJSON,
		"is_not_json":                 notOf(IsJSON),
		"is_json_list":                IsJSONList,
		"json_list":                   IsJSONList,
		"is_not_json_list":            notOf(IsJSONList),
		"not_json_list":               notOf(IsJSONList),
		"is_comma_separated_list":     IsCommaSeparatedList,
		"comma_separated_list":        IsCommaSeparatedList,
		"is_not_comma_separated_list": notOf(IsCommaSeparatedList),
		"not_comma_separated_list":    notOf(IsCommaSeparatedList),
		"is_short":                    IsShort,
		"is_long":                     IsLong,
		"is_greater_than":             IsGreaterThan,
		"is_less_than":                IsLessThan,
	}
}

// Lookup returns the named predicate, falling back to the affirmative
// predicate for unknown names.
func (r Registry) Lookup(name string) Func {
	if f, ok := r[name]; ok {
		return f
	}
	return IsYes
}

func notOf(f Func) Func {
	return func(answer, param string) bool { return !f(answer, param) }
}

// normalizeAnswer lowercases the answer and extracts its first word,
// stripping surrounding punctuation. Models often wrap a yes/no in
// markdown or follow it with commentary; the gate should still fire.
func normalizeAnswer(answer string) string {
	s := strings.ToLower(strings.TrimSpace(answer))
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRightFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// IsYes reports whether the answer reads as affirmative.
func IsYes(answer, param string) bool {
	switch normalizeAnswer(answer) {
	case "yes", "y", "true", "t", "1":
		return true
	}
	return false
}

// IsNo reports whether the answer reads as negative.
func IsNo(answer, param string) bool {
	switch normalizeAnswer(answer) {
	case "no", "n", "false", "f", "0":
		return true
	}
	return false
}

// IsNumber reports whether the answer parses as a number.
func IsNumber(answer, param string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(answer), 64)
	return err == nil
}

// IsJSON reports whether the answer is well-formed JSON.
func IsJSON(answer, param string) bool {
	var v interface{}
	return json.Unmarshal([]byte(answer), &v) == nil
}

// IsJSONList reports whether the answer is a well-formed JSON array.
func IsJSONList(answer, param string) bool {
	var v []interface{}
	return json.Unmarshal([]byte(answer), &v) == nil
}

// IsCommaSeparatedList reports whether the answer contains a comma.
func IsCommaSeparatedList(answer, param string) bool {
	return strings.Contains(answer, ",")
}

// DefaultLengthThreshold is used by IsShort/IsLong when no parameter is
// given.
const DefaultLengthThreshold = 5

func lengthThreshold(param string) (int, bool) {
	if strings.TrimSpace(param) == "" {
		return DefaultLengthThreshold, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(param))
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsShort reports whether the answer is shorter than the threshold.
func IsShort(answer, param string) bool {
	n, ok := lengthThreshold(param)
	return ok && len(answer) < n
}

// IsLong reports whether the answer is at least the threshold length.
func IsLong(answer, param string) bool {
	n, ok := lengthThreshold(param)
	return ok && len(answer) >= n
}

// IsGreaterThan reports whether the answer is numerically greater than the
// parameter.
func IsGreaterThan(answer, param string) bool {
	a, err1 := strconv.ParseFloat(strings.TrimSpace(answer), 64)
	b, err2 := strconv.ParseFloat(strings.TrimSpace(param), 64)
	return err1 == nil && err2 == nil && a > b
}

// IsLessThan reports whether the answer is numerically less than the
// parameter.
func IsLessThan(answer, param string) bool {
	a, err1 := strconv.ParseFloat(strings.TrimSpace(answer), 64)
	b, err2 := strconv.ParseFloat(strings.TrimSpace(param), 64)
	return err1 == nil && err2 == nil && a < b
}

// Package prompt implements template substitution over the workflow
// variable store, including length-bounded substitution that recursively
// splits oversized variable values with overlap so no content is silently
// dropped at a split boundary.
package prompt

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxLength is the prompt length budget when the
	// configuration does not set one.
	DefaultMaxLength = 100000

	// DefaultOverlap is carried across adjacent variants when an
	// oversized value is split.
	DefaultOverlap = 500
)

// Vars is a variable store mapping placeholder names to their values.
type Vars map[string]string

// Clone returns an independent copy of the store.
func (v Vars) Clone() Vars {
	out := make(Vars, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// substitution records one placeholder occurrence found in the template
// text, before any replacement shifts positions.
type substitution struct {
	key         string
	placeholder string
	replacement string
	position    int
}

// scan locates every occurrence of every known placeholder in text,
// ordered by original position (ties broken by key for determinism).
func scan(text string, vars Vars, escape bool) []substitution {
	var subs []substitution
	for key, value := range vars {
		placeholder := "[" + key + "]"
		if !strings.Contains(text, placeholder) {
			continue
		}
		replacement := value
		if escape {
			replacement = strconv.Quote(value)
		}
		for _, pos := range allOccurrences(text, placeholder) {
			subs = append(subs, substitution{
				key:         key,
				placeholder: placeholder,
				replacement: replacement,
				position:    pos,
			})
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].position != subs[j].position {
			return subs[i].position < subs[j].position
		}
		return subs[i].key < subs[j].key
	})
	return subs
}

func allOccurrences(text, substr string) []int {
	var positions []int
	start := 0
	for {
		i := strings.Index(text[start:], substr)
		if i < 0 {
			return positions
		}
		positions = append(positions, start+i)
		start += i + 1
	}
}

func apply(text string, subs []substitution) string {
	out := text
	for _, sub := range subs {
		out = strings.Replace(out, sub.placeholder, sub.replacement, 1)
	}
	return out
}

// Substitute replaces every [name] placeholder whose name is a key of
// vars with that variable's value. Substitutions are applied
// left-to-right by original position, one occurrence each. Placeholders
// for unknown names are left untouched. With escape set, values are
// wrapped in quoted literal form for embedding in expressions.
func Substitute(text string, vars Vars, escape bool) string {
	return apply(text, scan(text, vars, escape))
}

// SubstituteBounded substitutes like Substitute (without escaping) and
// guarantees each returned variant fits maxLength, splitting the longest
// substituted value in half with overlap and recursing over immutable
// copies of the store when the result is oversized. When nothing can be
// split — no substitutions at all, or the longest replacement no longer
// than the overlap — the single result is truncated to maxLength;
// information loss is accepted there as a deliberate last resort.
func SubstituteBounded(text string, vars Vars, maxLength, overlap int) []string {
	subs := scan(text, vars, false)
	processed := apply(text, subs)

	if len(processed) <= maxLength {
		return []string{processed}
	}
	if len(subs) == 0 {
		return []string{processed[:clampToRune(processed, maxLength)]}
	}

	longest := subs[0]
	for _, sub := range subs[1:] {
		if len(sub.replacement) > len(longest.replacement) {
			longest = sub
		}
	}
	if len(longest.replacement) <= overlap {
		return []string{processed[:clampToRune(processed, maxLength)]}
	}

	value := longest.replacement
	mid := clampToRune(value, len(value)/2)
	firstEnd := mid + overlap
	if firstEnd > len(value) {
		firstEnd = len(value)
	}
	firstEnd = clampToRune(value, firstEnd)

	var variants []string
	for _, half := range []string{value[:firstEnd], value[mid:]} {
		branch := vars.Clone()
		branch[longest.key] = half
		variants = append(variants, SubstituteBounded(text, branch, maxLength, overlap)...)
	}
	return variants
}

// clampToRune moves a byte index left until it sits on a rune boundary,
// so cutting a string at the result never splits a multibyte character.
func clampToRune(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

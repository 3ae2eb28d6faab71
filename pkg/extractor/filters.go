package extractor

import (
	"strings"
	"unicode/utf8"
)

// keepIf returns the words for which keep is true, preserving order.
func keepIf(words []string, keep func(string) bool) []string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if keep(w) {
			kept = append(kept, w)
		}
	}
	return kept
}

// LengthFilter drops path words that are too short to say anything about a
// page, or too long to be a real word (hashes, slugs glued together).
// A maxLength of zero disables the upper bound.
type LengthFilter struct {
	name      string
	minLength int
	maxLength int
}

func NewLengthFilter(name string, minLength, maxLength int) *LengthFilter {
	return &LengthFilter{name: name, minLength: minLength, maxLength: maxLength}
}

func (f *LengthFilter) Name() string { return f.name }

func (f *LengthFilter) Apply(words []string) []string {
	return keepIf(words, func(w string) bool {
		n := utf8.RuneCountInString(w)
		return n >= f.minLength && (f.maxLength <= 0 || n <= f.maxLength)
	})
}

// StopWordFilter drops URL boilerplate such as "www" or "html".
// Matching ignores case.
type StopWordFilter struct {
	name  string
	words map[string]struct{}
}

func NewStopWordFilter(name string, stopWords []string) *StopWordFilter {
	words := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		words[strings.ToLower(w)] = struct{}{}
	}
	return &StopWordFilter{name: name, words: words}
}

func (f *StopWordFilter) Name() string { return f.name }

func (f *StopWordFilter) Apply(words []string) []string {
	return keepIf(words, func(w string) bool {
		_, stop := f.words[strings.ToLower(w)]
		return !stop
	})
}

// DuplicateFilter keeps the first spelling of each word, case-insensitively,
// so a digest lists every keyword once.
type DuplicateFilter struct {
	name string
}

func NewDuplicateFilter(name string) *DuplicateFilter {
	return &DuplicateFilter{name: name}
}

func (f *DuplicateFilter) Name() string { return f.name }

func (f *DuplicateFilter) Apply(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	return keepIf(words, func(w string) bool {
		key := strings.ToLower(w)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})
}

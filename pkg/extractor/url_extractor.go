package extractor

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultStopWords are URL fragments that carry no topical meaning.
var DefaultStopWords = []string{
	"www", "com", "org", "net", "api", "app", "page", "html", "htm", "php",
}

const minKeywordLength = 3

// URLKeywordExtractor splits URL paths into lowercase words and runs them
// through a filter chain.
type URLKeywordExtractor struct {
	filters []Filter
}

// NewURLKeywordExtractor builds an extractor with the default chain:
// length, stop words, then duplicates.
func NewURLKeywordExtractor() *URLKeywordExtractor {
	return &URLKeywordExtractor{
		filters: []Filter{
			NewLengthFilter("length", minKeywordLength, 0),
			NewStopWordFilter("stopwords", DefaultStopWords),
			NewDuplicateFilter("duplicates"),
		},
	}
}

// Extract returns the keywords of a single absolute URL.
func (e *URLKeywordExtractor) Extract(urlStr string) ([]string, error) {
	words, err := splitURL(urlStr)
	if err != nil {
		return nil, err
	}
	return e.applyFilters(words), nil
}

// ExtractKeywords returns the distinct keywords of all URLs in first-seen
// order. URLs that are not absolute are skipped.
func (e *URLKeywordExtractor) ExtractKeywords(urls []string) []string {
	words := make([]string, 0, len(urls)*4)
	for _, u := range urls {
		parts, err := splitURL(u)
		if err != nil {
			continue
		}
		words = append(words, parts...)
	}
	return e.applyFilters(words)
}

func (e *URLKeywordExtractor) applyFilters(keywords []string) []string {
	for _, filter := range e.filters {
		keywords = filter.Apply(keywords)
	}
	if keywords == nil {
		return []string{}
	}
	return keywords
}

// ExtractKeywords runs the default extractor.
func ExtractKeywords(urls []string) []string {
	return NewURLKeywordExtractor().ExtractKeywords(urls)
}

func splitURL(urlStr string) ([]string, error) {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("not an absolute URL: %q", urlStr)
	}

	var words []string
	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment == "" {
			continue
		}
		for _, word := range strings.FieldsFunc(segment, isWordSeparator) {
			words = append(words, strings.ToLower(word))
		}
	}
	return words, nil
}

func isWordSeparator(r rune) bool {
	return r == '-' || r == '_'
}

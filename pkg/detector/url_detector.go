package detector

import (
	"sitemap-watch/pkg/extractor"
	"sitemap-watch/pkg/storage"
)

// Engine computes diffs with set semantics. It performs no I/O.
type Engine struct {
	extractor extractor.KeywordExtractor
}

func NewEngine(kw extractor.KeywordExtractor) *Engine {
	if kw == nil {
		kw = extractor.NewURLKeywordExtractor()
	}
	return &Engine{extractor: kw}
}

// Compute diffs current against previous. A nil previous yields an empty,
// Initial diff rather than reporting every URL as added.
func (e *Engine) Compute(previous, current *storage.Snapshot) *Diff {
	diff := &Diff{
		AddedURLs:   []string{},
		RemovedURLs: []string{},
		Keywords:    []string{},
	}
	if current != nil {
		diff.Site = current.Site
		diff.TimePeriod = current.TimePeriod
	}
	if previous == nil {
		diff.Initial = true
		return diff
	}

	var currentURLs []string
	if current != nil {
		currentURLs = current.URLs
	}

	diff.AddedURLs = difference(currentURLs, previous.URLs)
	diff.RemovedURLs = difference(previous.URLs, currentURLs)
	diff.Keywords = e.extractor.ExtractKeywords(diff.AddedURLs)
	return diff
}

// difference returns the distinct elements of a missing from b, ordered by
// first appearance in a.
func difference(a, b []string) []string {
	exclude := make(map[string]struct{}, len(b))
	for _, u := range b {
		exclude[u] = struct{}{}
	}

	out := make([]string, 0)
	seen := make(map[string]struct{}, len(a))
	for _, u := range a {
		if _, ok := exclude[u]; ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

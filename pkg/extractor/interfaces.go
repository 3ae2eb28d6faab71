package extractor

// KeywordExtractor derives keyword candidates from page URLs.
type KeywordExtractor interface {
	ExtractKeywords(urls []string) []string
	Extract(url string) ([]string, error)
}

// Filter is one stage of the keyword filter chain.
type Filter interface {
	Apply(keywords []string) []string
	Name() string
}

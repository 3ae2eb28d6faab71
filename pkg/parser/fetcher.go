package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"sitemap-watch/pkg/logger"
)

const (
	DefaultMaxDepth              = 5
	DefaultSubSitemapConcurrency = 2
	DefaultFetchTimeout          = 30 * time.Second
)

type xmlLoc struct {
	Loc string `xml:"loc"`
}

// xmlDocument decodes both <urlset> and <sitemapindex>; the root name decides
// which list is meaningful.
type xmlDocument struct {
	XMLName  xml.Name
	URLs     []xmlLoc `xml:"url"`
	Sitemaps []xmlLoc `xml:"sitemap"`
}

// FetcherConfig tunes an XMLFetcher. Zero values fall back to defaults.
type FetcherConfig struct {
	Timeout               time.Duration
	MaxDepth              int
	SubSitemapConcurrency int
}

// XMLFetcher downloads a sitemap and recursively expands sitemap indexes
// into one flat list of page URLs.
type XMLFetcher struct {
	httpClient      DownloadClient
	filters         []Filter
	log             *logger.Logger
	maxDepth        int
	concurrentLimit int
}

func NewXMLFetcher(cfg FetcherConfig) *XMLFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.SubSitemapConcurrency <= 0 {
		cfg.SubSitemapConcurrency = DefaultSubSitemapConcurrency
	}
	return &XMLFetcher{
		httpClient:      NewHTTPClient(cfg.Timeout),
		filters:         make([]Filter, 0),
		log:             logger.GetLogger().WithField("component", "sitemap_fetcher"),
		maxDepth:        cfg.MaxDepth,
		concurrentLimit: cfg.SubSitemapConcurrency,
	}
}

// SetHTTPClient swaps the download client, mainly for tests.
func (f *XMLFetcher) SetHTTPClient(client DownloadClient) {
	f.httpClient = client
}

func (f *XMLFetcher) AddFilter(filter Filter) {
	f.filters = append(f.filters, filter)
}

// sitemapNode is one downloaded document in the sitemap tree of a single
// FetchURLs call.
type sitemapNode struct {
	loc      string
	depth    int
	urls     []string
	sitemaps []xmlLoc
	children []*sitemapNode
}

// FetchURLs returns every page URL reachable from sitemapURL, in document
// order. Errors are only returned for the root document; broken child
// sitemaps are logged and skipped.
//
// The tree is expanded one depth level at a time. Child locations are
// claimed sequentially in document order between levels, so a sitemap
// listed in several places is always attributed to its first occurrence in
// breadth-first order, and each sitemap is downloaded at most once.
func (f *XMLFetcher) FetchURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	root := &sitemapNode{loc: sitemapURL}
	if err := f.load(ctx, root); err != nil {
		return nil, err
	}

	visited := map[string]struct{}{sitemapURL: {}}
	level := []*sitemapNode{root}
	for len(level) > 0 {
		level = f.expand(level, visited)
		f.loadAll(ctx, level)
	}

	return root.flatten(make([]string, 0, len(root.urls))), nil
}

func (f *XMLFetcher) load(ctx context.Context, node *sitemapNode) error {
	body, err := f.httpClient.Download(ctx, node.loc)
	if err != nil {
		return err
	}

	doc, err := decodeDocument(node.loc, body)
	if err != nil {
		return err
	}

	node.urls = f.collectURLs(doc.URLs)
	if doc.XMLName.Local == "sitemapindex" {
		node.sitemaps = doc.Sitemaps
	}
	return nil
}

// expand claims the children of every index in level and returns them as
// the next level. It runs on a single goroutine.
func (f *XMLFetcher) expand(level []*sitemapNode, visited map[string]struct{}) []*sitemapNode {
	var next []*sitemapNode
	for _, node := range level {
		if len(node.sitemaps) == 0 {
			continue
		}
		if node.depth+1 > f.maxDepth {
			f.log.WithFields(map[string]interface{}{
				"sitemap": node.loc,
				"depth":   node.depth,
			}).Warn("Maximum sitemap depth reached, skipping children")
			continue
		}

		f.log.WithField("count", len(node.sitemaps)).Debug("Processing sitemap index")
		for _, child := range node.sitemaps {
			loc := strings.TrimSpace(child.Loc)
			if loc == "" {
				continue
			}
			if _, seen := visited[loc]; seen {
				continue
			}
			visited[loc] = struct{}{}

			childNode := &sitemapNode{loc: loc, depth: node.depth + 1}
			node.children = append(node.children, childNode)
			next = append(next, childNode)
		}
	}
	return next
}

// loadAll downloads one level of sub-sitemaps concurrently.
func (f *XMLFetcher) loadAll(ctx context.Context, nodes []*sitemapNode) {
	sem := make(chan struct{}, f.concurrentLimit)
	var wg sync.WaitGroup

	for _, node := range nodes {
		wg.Add(1)
		go func(node *sitemapNode) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				f.log.WithField("sitemap", node.loc).Warn("Context cancelled, skipping sub-sitemap")
				return
			}

			if err := f.load(ctx, node); err != nil {
				f.log.WithError(err).WithField("sitemap", node.loc).Warn("Failed to fetch sub-sitemap")
			}
		}(node)
	}
	wg.Wait()
}

// flatten appends the node's own URLs and then each child's, depth first.
func (n *sitemapNode) flatten(out []string) []string {
	out = append(out, n.urls...)
	for _, child := range n.children {
		out = child.flatten(out)
	}
	return out
}

func (f *XMLFetcher) collectURLs(entries []xmlLoc) []string {
	urls := make([]string, 0, len(entries))
	for _, entry := range entries {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		if len(f.filters) > 0 {
			parsed, err := url.Parse(loc)
			if err == nil && f.shouldExclude(parsed) {
				continue
			}
		}
		urls = append(urls, loc)
	}
	return urls
}

func (f *XMLFetcher) shouldExclude(u *url.URL) bool {
	for _, filter := range f.filters {
		if filter.ShouldExclude(u) {
			return true
		}
	}
	return false
}

func decodeDocument(sitemapURL string, body []byte) (*xmlDocument, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.CharsetReader = charsetReader

	var doc xmlDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, &ParseError{URL: sitemapURL, Err: err}
	}

	switch doc.XMLName.Local {
	case "urlset", "sitemapindex":
		return &doc, nil
	default:
		return nil, &ParseError{
			URL: sitemapURL,
			Err: fmt.Errorf("unexpected root element <%s>", doc.XMLName.Local),
		}
	}
}

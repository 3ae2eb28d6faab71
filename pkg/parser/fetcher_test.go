package parser

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
)

type stubDownloader struct {
	mu     sync.Mutex
	docs   map[string]string
	errs   map[string]error
	counts map[string]int
}

func newStubDownloader() *stubDownloader {
	return &stubDownloader{
		docs:   make(map[string]string),
		errs:   make(map[string]error),
		counts: make(map[string]int),
	}
}

func (s *stubDownloader) Download(ctx context.Context, u string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[u]++
	if err, ok := s.errs[u]; ok {
		return nil, err
	}
	doc, ok := s.docs[u]
	if !ok {
		return nil, &FetchError{URL: u, StatusCode: 404}
	}
	return []byte(doc), nil
}

func urlset(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, l := range locs {
		fmt.Fprintf(&b, "<url><loc>%s</loc></url>", l)
	}
	b.WriteString("</urlset>")
	return b.String()
}

func sitemapIndex(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, l := range locs {
		fmt.Fprintf(&b, "<sitemap><loc>%s</loc></sitemap>", l)
	}
	b.WriteString("</sitemapindex>")
	return b.String()
}

func newTestFetcher(stub *stubDownloader) *XMLFetcher {
	f := NewXMLFetcher(FetcherConfig{})
	f.SetHTTPClient(stub)
	return f
}

func TestXMLFetcher_URLSet(t *testing.T) {
	stub := newStubDownloader()
	stub.docs["https://a.test/sitemap.xml"] = urlset(
		"https://a.test/one",
		"  https://a.test/two  ",
		"",
		"https://a.test/three",
	)

	urls, err := newTestFetcher(stub).FetchURLs(context.Background(), "https://a.test/sitemap.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{"https://a.test/one", "https://a.test/two", "https://a.test/three"}
	if !reflect.DeepEqual(urls, expected) {
		t.Errorf("Expected %v, got %v", expected, urls)
	}
}

func TestXMLFetcher_IndexFlattensInListingOrder(t *testing.T) {
	stub := newStubDownloader()
	stub.docs["https://a.test/index.xml"] = sitemapIndex("https://a.test/s1.xml", "https://a.test/s2.xml")
	stub.docs["https://a.test/s1.xml"] = urlset("https://a.test/a", "https://a.test/b")
	stub.docs["https://a.test/s2.xml"] = urlset("https://a.test/c", "https://a.test/d")

	urls, err := newTestFetcher(stub).FetchURLs(context.Background(), "https://a.test/index.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{"https://a.test/a", "https://a.test/b", "https://a.test/c", "https://a.test/d"}
	if !reflect.DeepEqual(urls, expected) {
		t.Errorf("Expected %v, got %v", expected, urls)
	}
}

func TestXMLFetcher_BrokenChildIsSkipped(t *testing.T) {
	stub := newStubDownloader()
	stub.docs["https://a.test/index.xml"] = sitemapIndex(
		"https://a.test/s1.xml",
		"https://a.test/missing.xml",
		"https://a.test/bad.xml",
		"https://a.test/s2.xml",
	)
	stub.docs["https://a.test/s1.xml"] = urlset("https://a.test/a")
	stub.docs["https://a.test/bad.xml"] = "<urlset><url><loc>broken"
	stub.docs["https://a.test/s2.xml"] = urlset("https://a.test/b")

	urls, err := newTestFetcher(stub).FetchURLs(context.Background(), "https://a.test/index.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{"https://a.test/a", "https://a.test/b"}
	if !reflect.DeepEqual(urls, expected) {
		t.Errorf("Expected %v, got %v", expected, urls)
	}
}

func TestXMLFetcher_CycleIsVisitedOnce(t *testing.T) {
	stub := newStubDownloader()
	stub.docs["https://a.test/index.xml"] = sitemapIndex("https://a.test/child.xml", "https://a.test/child.xml")
	stub.docs["https://a.test/child.xml"] = sitemapIndex("https://a.test/index.xml", "https://a.test/leaf.xml")
	stub.docs["https://a.test/leaf.xml"] = urlset("https://a.test/page")

	urls, err := newTestFetcher(stub).FetchURLs(context.Background(), "https://a.test/index.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !reflect.DeepEqual(urls, []string{"https://a.test/page"}) {
		t.Errorf("Expected a single page, got %v", urls)
	}
	for u, n := range stub.counts {
		if n != 1 {
			t.Errorf("Expected %s to be downloaded once, got %d", u, n)
		}
	}
}

func TestXMLFetcher_SharedChildUnderSiblingIndexes(t *testing.T) {
	stub := newStubDownloader()
	stub.docs["https://a.test/index.xml"] = sitemapIndex("https://a.test/s1.xml", "https://a.test/s2.xml")
	stub.docs["https://a.test/s1.xml"] = sitemapIndex("https://a.test/shared.xml", "https://a.test/a.xml")
	stub.docs["https://a.test/s2.xml"] = sitemapIndex("https://a.test/b.xml", "https://a.test/shared.xml")
	stub.docs["https://a.test/shared.xml"] = urlset("https://a.test/shared")
	stub.docs["https://a.test/a.xml"] = urlset("https://a.test/a")
	stub.docs["https://a.test/b.xml"] = urlset("https://a.test/b")

	expected := []string{"https://a.test/shared", "https://a.test/a", "https://a.test/b"}
	f := NewXMLFetcher(FetcherConfig{SubSitemapConcurrency: 4})
	f.SetHTTPClient(stub)

	for i := 0; i < 50; i++ {
		urls, err := f.FetchURLs(context.Background(), "https://a.test/index.xml")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !reflect.DeepEqual(urls, expected) {
			t.Fatalf("Run %d: expected %v, got %v", i, expected, urls)
		}
	}
	if n := stub.counts["https://a.test/shared.xml"]; n != 50 {
		t.Errorf("Expected shared sitemap to be downloaded once per run, got %d over 50 runs", n)
	}
}

func TestXMLFetcher_ShallowestOccurrenceWins(t *testing.T) {
	stub := newStubDownloader()
	stub.docs["https://a.test/index.xml"] = sitemapIndex("https://a.test/s1.xml", "https://a.test/shared.xml")
	stub.docs["https://a.test/s1.xml"] = sitemapIndex("https://a.test/shared.xml", "https://a.test/a.xml")
	stub.docs["https://a.test/shared.xml"] = urlset("https://a.test/shared")
	stub.docs["https://a.test/a.xml"] = urlset("https://a.test/a")

	urls, err := newTestFetcher(stub).FetchURLs(context.Background(), "https://a.test/index.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{"https://a.test/a", "https://a.test/shared"}
	if !reflect.DeepEqual(urls, expected) {
		t.Errorf("Expected %v, got %v", expected, urls)
	}
}

func TestXMLFetcher_MaxDepth(t *testing.T) {
	stub := newStubDownloader()
	stub.docs["https://a.test/0.xml"] = sitemapIndex("https://a.test/1.xml")
	stub.docs["https://a.test/1.xml"] = sitemapIndex("https://a.test/2.xml")
	stub.docs["https://a.test/2.xml"] = urlset("https://a.test/deep")

	f := NewXMLFetcher(FetcherConfig{MaxDepth: 1})
	f.SetHTTPClient(stub)

	urls, err := f.FetchURLs(context.Background(), "https://a.test/0.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(urls) != 0 {
		t.Errorf("Expected no URLs beyond max depth, got %v", urls)
	}
	if stub.counts["https://a.test/2.xml"] != 0 {
		t.Errorf("Expected depth-2 sitemap not to be fetched")
	}
}

func TestXMLFetcher_RootErrors(t *testing.T) {
	stub := newStubDownloader()
	stub.errs["https://a.test/down.xml"] = &FetchError{URL: "https://a.test/down.xml", StatusCode: 500}
	stub.docs["https://a.test/garbage.xml"] = "this is not xml"
	stub.docs["https://a.test/feed.xml"] = `<rss><channel></channel></rss>`

	f := newTestFetcher(stub)

	_, err := f.FetchURLs(context.Background(), "https://a.test/down.xml")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != 500 {
		t.Errorf("Expected FetchError with status 500, got: %v", err)
	}

	for _, u := range []string{"https://a.test/garbage.xml", "https://a.test/feed.xml"} {
		_, err = f.FetchURLs(context.Background(), u)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("Expected ParseError for %s, got: %v", u, err)
		}
	}
}

func TestXMLFetcher_Filters(t *testing.T) {
	stub := newStubDownloader()
	stub.docs["https://a.test/sitemap.xml"] = urlset(
		"https://a.test/blog/post",
		"https://a.test/admin/login",
		"https://a.test/files/report.pdf",
	)

	f := newTestFetcher(stub)
	for _, filter := range BuildFilters([]string{"/admin"}, []string{"pdf"}) {
		f.AddFilter(filter)
	}

	urls, err := f.FetchURLs(context.Background(), "https://a.test/sitemap.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(urls, []string{"https://a.test/blog/post"}) {
		t.Errorf("Expected only the blog post, got %v", urls)
	}
}

func TestXMLFetcher_NonUTF8Charset(t *testing.T) {
	stub := newStubDownloader()
	stub.docs["https://a.test/latin1.xml"] = "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" +
		"<urlset><url><loc>https://a.test/caf\xe9</loc></url></urlset>"

	urls, err := newTestFetcher(stub).FetchURLs(context.Background(), "https://a.test/latin1.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://a.test/café" {
		t.Errorf("Expected decoded latin1 URL, got %v", urls)
	}
}

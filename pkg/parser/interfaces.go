package parser

import (
	"context"
	"net/url"
)

// SitemapFetcher turns a sitemap location into the flat, ordered list of page
// URLs it describes.
type SitemapFetcher interface {
	FetchURLs(ctx context.Context, sitemapURL string) ([]string, error)
}

// DownloadClient retrieves a raw document body.
type DownloadClient interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Filter excludes page URLs from fetch results.
type Filter interface {
	ShouldExclude(u *url.URL) bool
	Name() string
}

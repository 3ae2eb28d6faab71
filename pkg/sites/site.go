package sites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNoSiteConfig means the site file does not exist yet.
	ErrNoSiteConfig  = errors.New("no site configuration")
	ErrSiteNotFound  = errors.New("site not found")
	ErrDuplicateSite = errors.New("site already exists")
	ErrInvalidSite   = errors.New("invalid site")
)

// Site is one monitored sitemap.
type Site struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	SitemapURL  string     `json:"sitemapUrl"`
	IsActive    bool       `json:"isActive"`
	AddedAt     time.Time  `json:"addedAt"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
}

// Source is the read side used by the monitoring cycle.
type Source interface {
	ActiveSites(ctx context.Context) ([]Site, error)
	MarkChecked(ctx context.Context, id string, at time.Time) error
}

// ConfigError reports a site file that is missing or unreadable.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("site config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ValidateSitemapURL accepts absolute http(s) URLs only.
func ValidateSitemapURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: sitemap url: %v", ErrInvalidSite, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: sitemap url must use http or https", ErrInvalidSite)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: sitemap url has no host", ErrInvalidSite)
	}
	return nil
}

package sites

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"sitemap-watch/pkg/logger"
)

// FileRegistry keeps the site list in a JSON file. It reads either a list of
// Site objects or the legacy {"name": "sitemap url"} map, and always writes
// the list form.
type FileRegistry struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
	log  *logger.Logger
}

func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{
		path: path,
		now:  time.Now,
		log:  logger.GetLogger().WithField("component", "site_registry"),
	}
}

func (r *FileRegistry) Path() string {
	return r.path
}

// read loads the file. A missing file is reported as ErrNoSiteConfig.
func (r *FileRegistry) read() ([]Site, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigError{Path: r.path, Err: ErrNoSiteConfig}
		}
		return nil, &ConfigError{Path: r.path, Err: err}
	}

	sites, err := decodeSites(data)
	if err != nil {
		return nil, &ConfigError{Path: r.path, Err: err}
	}
	return sites, nil
}

func decodeSites(data []byte) ([]Site, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []Site{}, nil
	}

	switch data[0] {
	case '[':
		var sites []Site
		if err := json.Unmarshal(data, &sites); err != nil {
			return nil, fmt.Errorf("decode site list: %w", err)
		}
		return sites, nil
	case '{':
		var legacy map[string]string
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("decode site map: %w", err)
		}
		names := make([]string, 0, len(legacy))
		for name := range legacy {
			names = append(names, name)
		}
		sort.Strings(names)

		sites := make([]Site, 0, len(names))
		for _, name := range names {
			sites = append(sites, Site{
				// Stable across reads so API ids survive until the file is rewritten.
				ID:         uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String(),
				Name:       name,
				SitemapURL: legacy[name],
				IsActive:   true,
			})
		}
		return sites, nil
	default:
		return nil, fmt.Errorf("unrecognized site file format")
	}
}

func (r *FileRegistry) write(sites []Site) error {
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &ConfigError{Path: r.path, Err: err}
		}
	}

	data, err := json.MarshalIndent(sites, "", "  ")
	if err != nil {
		return &ConfigError{Path: r.path, Err: err}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &ConfigError{Path: r.path, Err: err}
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return &ConfigError{Path: r.path, Err: err}
	}
	return nil
}

// readOrEmpty treats a missing file as an empty registry.
func (r *FileRegistry) readOrEmpty() ([]Site, error) {
	sites, err := r.read()
	if errors.Is(err, ErrNoSiteConfig) {
		return []Site{}, nil
	}
	if err != nil {
		return nil, err
	}
	return sites, nil
}

// List returns every site, active or not.
func (r *FileRegistry) List(ctx context.Context) ([]Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readOrEmpty()
}

// ActiveSites returns the sites to monitor. Unlike List, a missing file is
// an error wrapping ErrNoSiteConfig.
func (r *FileRegistry) ActiveSites(ctx context.Context) ([]Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sites, err := r.read()
	if err != nil {
		return nil, err
	}

	active := make([]Site, 0, len(sites))
	for _, s := range sites {
		if s.IsActive {
			active = append(active, s)
		}
	}
	return active, nil
}

func (r *FileRegistry) Get(ctx context.Context, id string) (*Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sites, err := r.readOrEmpty()
	if err != nil {
		return nil, err
	}
	for i := range sites {
		if sites[i].ID == id {
			return &sites[i], nil
		}
	}
	return nil, ErrSiteNotFound
}

// Add registers a new active site with a random id.
func (r *FileRegistry) Add(ctx context.Context, name, sitemapURL string) (*Site, error) {
	name = strings.TrimSpace(name)
	sitemapURL = strings.TrimSpace(sitemapURL)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSite)
	}
	if err := ValidateSitemapURL(sitemapURL); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sites, err := r.readOrEmpty()
	if err != nil {
		return nil, err
	}
	for _, s := range sites {
		if strings.EqualFold(s.Name, name) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSite, name)
		}
	}

	site := Site{
		ID:         uuid.NewString(),
		Name:       name,
		SitemapURL: sitemapURL,
		IsActive:   true,
		AddedAt:    r.now().UTC(),
	}
	if err := r.write(append(sites, site)); err != nil {
		return nil, err
	}

	r.log.WithFields(map[string]interface{}{
		"site_id": site.ID,
		"name":    site.Name,
	}).Info("Site added")
	return &site, nil
}

func (r *FileRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sites, err := r.readOrEmpty()
	if err != nil {
		return err
	}
	kept := make([]Site, 0, len(sites))
	for _, s := range sites {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(sites) {
		return ErrSiteNotFound
	}
	return r.write(kept)
}

func (r *FileRegistry) SetActive(ctx context.Context, id string, active bool) (*Site, error) {
	var updated *Site
	err := r.update(id, func(s *Site) {
		s.IsActive = active
		copied := *s
		updated = &copied
	})
	return updated, err
}

// MarkChecked records the time a site was last monitored.
func (r *FileRegistry) MarkChecked(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	return r.update(id, func(s *Site) {
		s.LastChecked = &at
	})
}

func (r *FileRegistry) update(id string, fn func(*Site)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sites, err := r.readOrEmpty()
	if err != nil {
		return err
	}
	for i := range sites {
		if sites[i].ID == id {
			fn(&sites[i])
			return r.write(sites)
		}
	}
	return ErrSiteNotFound
}

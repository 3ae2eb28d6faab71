package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sitemap-watch/pkg/logger"
)

const snapshotExt = ".json"

// FileStore writes one indented JSON document per snapshot under
// <dataDir>/snapshots, named <site>_<period>.json.
type FileStore struct {
	dir string
	log *logger.Logger
}

func NewFileStore(dataDir string) (*FileStore, error) {
	dir := filepath.Join(dataDir, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StoreError{Backend: "file", Op: "init", Key: dir, Err: err}
	}
	return &FileStore{
		dir: dir,
		log: logger.GetLogger().WithField("component", "file_store"),
	}, nil
}

func (s *FileStore) fileName(siteKey, period string) string {
	return filepath.Join(s.dir, siteKey+"_"+period+snapshotExt)
}

func (s *FileStore) Save(ctx context.Context, snapshot *Snapshot) error {
	path := s.fileName(NormalizeSite(snapshot.Site), snapshot.TimePeriod)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return &StoreError{Backend: "file", Op: "save", Key: path, Err: err}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &StoreError{Backend: "file", Op: "save", Key: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &StoreError{Backend: "file", Op: "save", Key: path, Err: err}
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, site, timePeriod string) (*Snapshot, error) {
	return s.load(s.fileName(NormalizeSite(site), timePeriod))
}

func (s *FileStore) load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StoreError{Backend: "file", Op: "load", Key: path, Err: err}
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, &StoreError{Backend: "file", Op: "load", Key: path, Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	return &snapshot, nil
}

func (s *FileStore) LoadMostRecentBefore(ctx context.Context, site, excludingPeriod string) (*Snapshot, error) {
	periods, err := s.ListTimePeriods(ctx, site)
	if err != nil {
		return nil, err
	}
	best, ok := mostRecentExcept(periods, excludingPeriod)
	if !ok {
		return nil, nil
	}
	return s.Load(ctx, site, best)
}

func (s *FileStore) ListTimePeriods(ctx context.Context, site string) ([]string, error) {
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}

	key := NormalizeSite(site)
	periods := make([]string, 0)
	for _, e := range entries {
		if e.siteKey == key {
			periods = append(periods, e.period)
		}
	}
	sortPeriodsDesc(periods)
	return periods, nil
}

func (s *FileStore) ListSites(ctx context.Context) ([]string, error) {
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}

	sites := make([]string, 0, len(entries))
	for _, e := range entries {
		sites = append(sites, e.siteKey)
	}
	return dedupeSorted(sites), nil
}

func (s *FileStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := s.entries()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, e := range entries {
		if !periodBefore(e.period, cutoff) {
			continue
		}
		path := s.fileName(e.siteKey, e.period)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).WithField("file", path).Warn("Failed to delete expired snapshot")
			continue
		}
		deleted++
	}
	return deleted, nil
}

type fileEntry struct {
	siteKey string
	period  string
}

func (s *FileStore) entries() ([]fileEntry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StoreError{Backend: "file", Op: "list", Key: s.dir, Err: err}
	}

	entries := make([]fileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), snapshotExt) {
			continue
		}
		siteKey, period, ok := splitSnapshotName(strings.TrimSuffix(de.Name(), snapshotExt))
		if !ok {
			continue
		}
		entries = append(entries, fileEntry{siteKey: siteKey, period: period})
	}
	return entries, nil
}

// splitSnapshotName splits "<site>_<period>" where period is either
// hourly (YYYY-MM-DD_HH) or a legacy day (YYYY-MM-DD).
func splitSnapshotName(name string) (siteKey, period string, ok bool) {
	for _, layout := range []string{PeriodLayout, DayLayout} {
		n := len(layout)
		if len(name) < n+2 || name[len(name)-n-1] != '_' {
			continue
		}
		candidate := name[len(name)-n:]
		if _, err := time.Parse(layout, candidate); err != nil {
			continue
		}
		return name[:len(name)-n-1], candidate, true
	}
	return "", "", false
}

package detector

import (
	"context"
	"time"

	"sitemap-watch/pkg/storage"
)

// Diff is the set difference between two snapshots of one site. It is
// computed on demand and never persisted.
type Diff struct {
	Site        string   `json:"site"`
	TimePeriod  string   `json:"timePeriod"`
	AddedURLs   []string `json:"addedUrls"`
	RemovedURLs []string `json:"removedUrls"`
	Keywords    []string `json:"keywords"`
	// Initial is set when there was no earlier snapshot to compare with.
	Initial bool `json:"initial"`
}

// HasChanges reports whether any URL was added.
func (d *Diff) HasChanges() bool {
	return d != nil && len(d.AddedURLs) > 0
}

// ChangeDetector compares two snapshots of the same site.
type ChangeDetector interface {
	Compute(previous, current *storage.Snapshot) *Diff
}

// HistoryManager records snapshots and answers history queries for a site.
type HistoryManager interface {
	RecordSnapshot(ctx context.Context, site string, urls []string, capturedAt time.Time) (current, previous *storage.Snapshot, err error)
	GetSnapshotHistory(ctx context.Context, site string, limit int) ([]SnapshotMetadata, error)
}

// SnapshotMetadata describes a stored snapshot without its URL list.
type SnapshotMetadata struct {
	Site       string    `json:"site"`
	TimePeriod string    `json:"timePeriod"`
	CapturedAt time.Time `json:"capturedAt"`
	URLCount   int       `json:"urlCount"`
	Checksum   string    `json:"checksum"`
}

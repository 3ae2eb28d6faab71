package detector

import (
	"context"
	"fmt"
	"time"

	"sitemap-watch/pkg/logger"
	"sitemap-watch/pkg/storage"
)

// SnapshotHistory implements HistoryManager on top of a SnapshotStore.
type SnapshotHistory struct {
	store storage.SnapshotStore
	log   *logger.Logger
}

func NewSnapshotHistory(store storage.SnapshotStore) *SnapshotHistory {
	return &SnapshotHistory{
		store: store,
		log:   logger.GetLogger().WithField("component", "snapshot_history"),
	}
}

// RecordSnapshot saves the URLs as the snapshot for capturedAt's period and
// returns it together with the most recent snapshot of any other period.
// previous is nil when the site has no history yet.
func (h *SnapshotHistory) RecordSnapshot(ctx context.Context, site string, urls []string, capturedAt time.Time) (*storage.Snapshot, *storage.Snapshot, error) {
	current := storage.NewSnapshot(site, urls, capturedAt)

	if err := h.store.Save(ctx, current); err != nil {
		return current, nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	previous, err := h.store.LoadMostRecentBefore(ctx, site, current.TimePeriod)
	if err != nil {
		return current, nil, fmt.Errorf("failed to load previous snapshot: %w", err)
	}

	fields := map[string]interface{}{
		"site":      site,
		"period":    current.TimePeriod,
		"url_count": current.TotalCount,
		"checksum":  current.Checksum,
	}
	if previous != nil {
		fields["previous_period"] = previous.TimePeriod
		fields["unchanged"] = previous.Checksum != "" && previous.Checksum == current.Checksum
	}
	h.log.WithFields(fields).Info("Snapshot saved")

	return current, previous, nil
}

// GetSnapshotHistory lists snapshot metadata newest first. A limit of zero
// returns everything.
func (h *SnapshotHistory) GetSnapshotHistory(ctx context.Context, site string, limit int) ([]SnapshotMetadata, error) {
	periods, err := h.store.ListTimePeriods(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if limit > 0 && len(periods) > limit {
		periods = periods[:limit]
	}

	history := make([]SnapshotMetadata, 0, len(periods))
	for _, period := range periods {
		snapshot, err := h.store.Load(ctx, site, period)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot %s: %w", period, err)
		}
		if snapshot == nil {
			continue
		}
		history = append(history, SnapshotMetadata{
			Site:       snapshot.Site,
			TimePeriod: snapshot.TimePeriod,
			CapturedAt: snapshot.CapturedAt,
			URLCount:   snapshot.TotalCount,
			Checksum:   snapshot.Checksum,
		})
	}
	return history, nil
}

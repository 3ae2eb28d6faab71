package storage

import (
	"context"
	"time"

	"sitemap-watch/pkg/logger"
)

// FallbackStore serves operations from an in-process MemoryStore whenever the
// primary backend fails. Reads merge both sources so snapshots written during
// an outage stay visible for the rest of the process. The fallback is not
// durable: anything only held in memory is lost on restart.
type FallbackStore struct {
	primary  SnapshotStore
	fallback *MemoryStore
	name     string
	log      *logger.Logger
}

func NewFallbackStore(name string, primary SnapshotStore, fallback *MemoryStore) *FallbackStore {
	if fallback == nil {
		fallback = NewMemoryStore()
	}
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
		name:     name,
		log:      logger.GetLogger().WithField("component", "fallback_store"),
	}
}

// Primary exposes the wrapped backend.
func (s *FallbackStore) Primary() SnapshotStore {
	return s.primary
}

func (s *FallbackStore) degraded(op string, err error) {
	s.log.WithError(err).WithFields(map[string]interface{}{
		"backend": s.name,
		"op":      op,
	}).Warn("Snapshot backend failed, using in-memory fallback (not durable)")
}

func (s *FallbackStore) Save(ctx context.Context, snapshot *Snapshot) error {
	if err := s.primary.Save(ctx, snapshot); err != nil {
		s.degraded("save", err)
		return s.fallback.Save(ctx, snapshot)
	}
	// The primary now holds the newest copy of this key.
	if s.fallback.delete(snapshot.Site, snapshot.TimePeriod) {
		s.log.WithFields(map[string]interface{}{
			"backend":     s.name,
			"site":        snapshot.Site,
			"time_period": snapshot.TimePeriod,
		}).Info("Primary backend recovered, dropped in-memory copy")
	}
	return nil
}

// Load prefers a copy saved during an outage over the primary's. Such a copy
// only exists while the primary has not accepted a newer save of the key.
func (s *FallbackStore) Load(ctx context.Context, site, timePeriod string) (*Snapshot, error) {
	if snapshot, _ := s.fallback.Load(ctx, site, timePeriod); snapshot != nil {
		return snapshot, nil
	}
	snapshot, err := s.primary.Load(ctx, site, timePeriod)
	if err != nil {
		s.degraded("load", err)
		return nil, nil
	}
	return snapshot, nil
}

func (s *FallbackStore) LoadMostRecentBefore(ctx context.Context, site, excludingPeriod string) (*Snapshot, error) {
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

func (s *FallbackStore) ListTimePeriods(ctx context.Context, site string) ([]string, error) {
	primary, err := s.primary.ListTimePeriods(ctx, site)
	if err != nil {
		s.degraded("list_periods", err)
	}
	local, _ := s.fallback.ListTimePeriods(ctx, site)

	merged := dedupeSorted(append(append([]string{}, primary...), local...))
	sortPeriodsDesc(merged)
	return merged, nil
}

func (s *FallbackStore) ListSites(ctx context.Context) ([]string, error) {
	primary, err := s.primary.ListSites(ctx)
	if err != nil {
		s.degraded("list_sites", err)
	}
	local, _ := s.fallback.ListSites(ctx)
	return dedupeSorted(append(append([]string{}, primary...), local...)), nil
}

func (s *FallbackStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	deleted, err := s.primary.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.degraded("purge", err)
		deleted = 0
	}
	local, _ := s.fallback.PurgeOlderThan(ctx, cutoff)
	return deleted + local, nil
}

func (s *FallbackStore) Close() error {
	if c, ok := s.primary.(Closer); ok {
		return c.Close()
	}
	return nil
}

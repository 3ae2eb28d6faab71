package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process memory. It is safe for concurrent use.
type MemoryStore struct {
	data map[string]map[string]*Snapshot
	mu   sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]*Snapshot),
	}
}

func (ms *MemoryStore) Save(ctx context.Context, snapshot *Snapshot) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	key := NormalizeSite(snapshot.Site)
	periods, ok := ms.data[key]
	if !ok {
		periods = make(map[string]*Snapshot)
		ms.data[key] = periods
	}
	periods[snapshot.TimePeriod] = cloneSnapshot(snapshot)
	return nil
}

func (ms *MemoryStore) Load(ctx context.Context, site, timePeriod string) (*Snapshot, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return cloneSnapshot(ms.data[NormalizeSite(site)][timePeriod]), nil
}

func (ms *MemoryStore) LoadMostRecentBefore(ctx context.Context, site, excludingPeriod string) (*Snapshot, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	periods := ms.data[NormalizeSite(site)]
	keys := make([]string, 0, len(periods))
	for p := range periods {
		keys = append(keys, p)
	}
	best, ok := mostRecentExcept(keys, excludingPeriod)
	if !ok {
		return nil, nil
	}
	return cloneSnapshot(periods[best]), nil
}

func (ms *MemoryStore) ListTimePeriods(ctx context.Context, site string) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	periods := ms.data[NormalizeSite(site)]
	out := make([]string, 0, len(periods))
	for p := range periods {
		out = append(out, p)
	}
	sortPeriodsDesc(out)
	return out, nil
}

func (ms *MemoryStore) ListSites(ctx context.Context) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]string, 0, len(ms.data))
	for key, periods := range ms.data {
		if len(periods) > 0 {
			out = append(out, key)
		}
	}
	return dedupeSorted(out), nil
}

func (ms *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	deleted := 0
	for key, periods := range ms.data {
		for p := range periods {
			if periodBefore(p, cutoff) {
				delete(periods, p)
				deleted++
			}
		}
		if len(periods) == 0 {
			delete(ms.data, key)
		}
	}
	return deleted, nil
}

// delete drops one snapshot. It reports whether anything was removed.
func (ms *MemoryStore) delete(site, timePeriod string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	key := NormalizeSite(site)
	periods, ok := ms.data[key]
	if !ok {
		return false
	}
	if _, ok := periods[timePeriod]; !ok {
		return false
	}
	delete(periods, timePeriod)
	if len(periods) == 0 {
		delete(ms.data, key)
	}
	return true
}

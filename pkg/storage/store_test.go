package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

var baseTime = time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, store SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	missing, err := store.LoadMostRecentBefore(ctx, "example.com", "2024-03-10_14")
	if err != nil {
		t.Fatalf("Expected no error on empty store, got: %v", err)
	}
	if missing != nil {
		t.Fatalf("Expected no snapshot on empty store, got %+v", missing)
	}

	older := NewSnapshot("example.com", []string{"https://example.com/a", "https://example.com/b"}, baseTime.Add(-2*time.Hour))
	newer := NewSnapshot("example.com", []string{"https://example.com/a"}, baseTime.Add(-time.Hour))
	current := NewSnapshot("example.com", []string{"https://example.com/a", "https://example.com/c"}, baseTime)
	other := NewSnapshot("other site!", []string{"https://other.test/x"}, baseTime)

	for _, s := range []*Snapshot{older, newer, current, other} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Save %s/%s failed: %v", s.Site, s.TimePeriod, err)
		}
	}

	loaded, err := store.Load(ctx, "example.com", current.TimePeriod)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || !reflect.DeepEqual(loaded.URLs, current.URLs) || loaded.TotalCount != 2 {
		t.Errorf("Expected current snapshot back, got %+v", loaded)
	}
	if loaded != nil && loaded.Checksum != current.Checksum {
		t.Errorf("Expected checksum %s, got %s", current.Checksum, loaded.Checksum)
	}

	prev, err := store.LoadMostRecentBefore(ctx, "example.com", current.TimePeriod)
	if err != nil {
		t.Fatalf("LoadMostRecentBefore failed: %v", err)
	}
	if prev == nil || prev.TimePeriod != newer.TimePeriod {
		t.Errorf("Expected period %s, got %+v", newer.TimePeriod, prev)
	}

	// Normalization must match on the load path.
	prev, err = store.LoadMostRecentBefore(ctx, "example_com", "")
	if err != nil {
		t.Fatalf("LoadMostRecentBefore failed: %v", err)
	}
	if prev == nil || prev.TimePeriod != current.TimePeriod {
		t.Errorf("Expected normalized lookup to find %s, got %+v", current.TimePeriod, prev)
	}

	periods, err := store.ListTimePeriods(ctx, "example.com")
	if err != nil {
		t.Fatalf("ListTimePeriods failed: %v", err)
	}
	expected := []string{"2024-03-10_14", "2024-03-10_13", "2024-03-10_12"}
	if !reflect.DeepEqual(periods, expected) {
		t.Errorf("Expected periods %v, got %v", expected, periods)
	}

	sites, err := store.ListSites(ctx)
	if err != nil {
		t.Fatalf("ListSites failed: %v", err)
	}
	if !reflect.DeepEqual(sites, []string{"example_com", "other_site_"}) {
		t.Errorf("Unexpected sites: %v", sites)
	}

	stale := NewSnapshot("example.com", []string{"https://example.com/old"}, baseTime.AddDate(0, 0, -9))
	if err := store.Save(ctx, stale); err != nil {
		t.Fatalf("Save stale failed: %v", err)
	}
	purged, err := store.PurgeOlderThan(ctx, baseTime.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("Expected 1 purged snapshot, got %d", purged)
	}
	periods, _ = store.ListTimePeriods(ctx, "example.com")
	if len(periods) != 3 {
		t.Errorf("Expected 3 periods after purge, got %v", periods)
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestFileStore_Contract(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	runStoreContract(t, store)
}

func TestSQLiteStore_Contract(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), t.TempDir()+"/snapshots.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()
	runStoreContract(t, store)
}

func TestSnapshotIsCopied(t *testing.T) {
	urls := []string{"https://a.test/1"}
	s := NewSnapshot("a", urls, baseTime)
	urls[0] = "mutated"

	if s.URLs[0] != "https://a.test/1" {
		t.Errorf("Snapshot shares caller slice")
	}

	store := NewMemoryStore()
	store.Save(context.Background(), s)
	loaded, _ := store.Load(context.Background(), "a", s.TimePeriod)
	loaded.URLs[0] = "mutated"

	again, _ := store.Load(context.Background(), "a", s.TimePeriod)
	if again.URLs[0] != "https://a.test/1" {
		t.Errorf("MemoryStore leaked internal state")
	}
}

func TestNormalizeSite(t *testing.T) {
	cases := map[string]string{
		"example.com":        "example_com",
		"My Site/Blog":       "My_Site_Blog",
		"abc123":             "abc123",
		"café":               "caf_",
		"https://x.io/a?b=c": "https___x_io_a_b_c",
	}
	for in, want := range cases {
		if got := NormalizeSite(in); got != want {
			t.Errorf("NormalizeSite(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPeriods(t *testing.T) {
	if p := TimePeriodFor(time.Date(2024, 1, 2, 3, 59, 0, 0, time.FixedZone("x", 3600))); p != "2024-01-02_02" {
		t.Errorf("Expected UTC hourly bucket, got %s", p)
	}

	periods := []string{"2024-01-02_01", "2024-01-02", "2024-01-01_23", "2024-01-02_10"}
	sortPeriodsDesc(periods)
	expected := []string{"2024-01-02_10", "2024-01-02_01", "2024-01-02", "2024-01-01_23"}
	if !reflect.DeepEqual(periods, expected) {
		t.Errorf("Expected %v, got %v", expected, periods)
	}

	cutoff := time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC)
	if periodBefore("2024-01-02_00", cutoff) {
		t.Error("Same-day period must not be purged")
	}
	if !periodBefore("2024-01-01", cutoff) || !periodBefore("2024-01-01_23", cutoff) {
		t.Error("Previous-day periods must be purged")
	}
	if periodBefore("garbage", cutoff) {
		t.Error("Unparseable periods must be kept")
	}

	if !ValidTimePeriod("2024-01-02_05") || !ValidTimePeriod("2024-01-02") || ValidTimePeriod("2024-13-02") {
		t.Error("ValidTimePeriod returned unexpected result")
	}
}

func TestSplitSnapshotName(t *testing.T) {
	cases := []struct {
		name, site, period string
		ok                 bool
	}{
		{"example_com_2024-03-10_14", "example_com", "2024-03-10_14", true},
		{"example_com_2024-03-10", "example_com", "2024-03-10", true},
		{"a_b_c_2024-03-10_00", "a_b_c", "2024-03-10_00", true},
		{"2024-03-10_14", "", "", false},
		{"notes", "", "", false},
	}
	for _, c := range cases {
		site, period, ok := splitSnapshotName(c.name)
		if ok != c.ok || site != c.site || period != c.period {
			t.Errorf("splitSnapshotName(%q) = %q, %q, %v", c.name, site, period, ok)
		}
	}
}

type failingStore struct{}

var errBackendDown = errors.New("backend down")

func (failingStore) Save(context.Context, *Snapshot) error { return errBackendDown }
func (failingStore) Load(context.Context, string, string) (*Snapshot, error) {
	return nil, errBackendDown
}
func (failingStore) LoadMostRecentBefore(context.Context, string, string) (*Snapshot, error) {
	return nil, errBackendDown
}
func (failingStore) ListTimePeriods(context.Context, string) ([]string, error) {
	return nil, errBackendDown
}
func (failingStore) ListSites(context.Context) ([]string, error) { return nil, errBackendDown }
func (failingStore) PurgeOlderThan(context.Context, time.Time) (int, error) {
	return 0, errBackendDown
}

func TestFallbackStore_DegradesToMemory(t *testing.T) {
	runStoreContract(t, NewFallbackStore("broken", failingStore{}, nil))
}

func TestFallbackStore_MergesPrimaryAndMemory(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryStore()
	fallback := NewMemoryStore()
	store := NewFallbackStore("memory", primary, fallback)

	persisted := NewSnapshot("site", []string{"https://a.test/1"}, baseTime.Add(-time.Hour))
	primary.Save(ctx, persisted)

	outage := NewSnapshot("site", []string{"https://a.test/1", "https://a.test/2"}, baseTime)
	fallback.Save(ctx, outage)

	periods, err := store.ListTimePeriods(ctx, "site")
	if err != nil {
		t.Fatalf("ListTimePeriods failed: %v", err)
	}
	if !reflect.DeepEqual(periods, []string{outage.TimePeriod, persisted.TimePeriod}) {
		t.Errorf("Expected merged periods, got %v", periods)
	}

	prev, _ := store.LoadMostRecentBefore(ctx, "site", "")
	if prev == nil || prev.TimePeriod != outage.TimePeriod {
		t.Errorf("Expected outage snapshot to win, got %+v", prev)
	}

	prev, _ = store.LoadMostRecentBefore(ctx, "site", outage.TimePeriod)
	if prev == nil || prev.TimePeriod != persisted.TimePeriod {
		t.Errorf("Expected persisted snapshot, got %+v", prev)
	}
}

// flakyStore fails the first n saves and then behaves like a MemoryStore.
type flakyStore struct {
	*MemoryStore
	mu        sync.Mutex
	failSaves int
}

func (f *flakyStore) Save(ctx context.Context, snapshot *Snapshot) error {
	f.mu.Lock()
	if f.failSaves > 0 {
		f.failSaves--
		f.mu.Unlock()
		return errBackendDown
	}
	f.mu.Unlock()
	return f.MemoryStore.Save(ctx, snapshot)
}

func TestFallbackStore_RecoveredSaveReplacesOutageCopy(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{MemoryStore: NewMemoryStore(), failSaves: 1}
	store := NewFallbackStore("flaky", primary, nil)

	first := NewSnapshot("x.io", []string{"https://x.io/a"}, baseTime)
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Expected outage save to succeed in memory, got: %v", err)
	}

	second := NewSnapshot("x.io", []string{"https://x.io/a", "https://x.io/b"}, baseTime.Add(20*time.Minute))
	if second.TimePeriod != first.TimePeriod {
		t.Fatalf("Expected both saves in one period, got %s and %s", first.TimePeriod, second.TimePeriod)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.LoadMostRecentBefore(ctx, "x.io", "")
	if err != nil || loaded == nil {
		t.Fatalf("Expected snapshot, got %v, %v", loaded, err)
	}
	if !reflect.DeepEqual(loaded.URLs, second.URLs) {
		t.Errorf("Expected last saved URLs %v, got %v", second.URLs, loaded.URLs)
	}

	direct, _ := store.Load(ctx, "x.io", first.TimePeriod)
	if direct == nil || direct.TotalCount != 2 {
		t.Errorf("Expected Load to return the recovered copy, got %+v", direct)
	}
}

func TestFallbackStore_ConcurrentOutage(t *testing.T) {
	ctx := context.Background()
	store := NewFallbackStore("broken", failingStore{}, nil)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			site := fmt.Sprintf("site-%d", i%4)
			for h := 0; h < 5; h++ {
				snap := NewSnapshot(site, []string{fmt.Sprintf("https://a.test/%d/%d", i, h)}, baseTime.Add(time.Duration(h)*time.Hour))
				if err := store.Save(ctx, snap); err != nil {
					t.Errorf("Save failed: %v", err)
				}
				if _, err := store.LoadMostRecentBefore(ctx, site, snap.TimePeriod); err != nil {
					t.Errorf("LoadMostRecentBefore failed: %v", err)
				}
				store.ListSites(ctx)
			}
		}(i)
	}
	wg.Wait()

	sites, _ := store.ListSites(ctx)
	if len(sites) != 4 {
		t.Errorf("Expected 4 sites, got %v", sites)
	}
	for _, site := range sites {
		periods, _ := store.ListTimePeriods(ctx, site)
		if len(periods) != 5 {
			t.Errorf("Expected 5 periods for %s, got %v", site, periods)
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	if _, ok := NewFromConfig(ctx, StorageConfig{Backend: "memory"}).(*MemoryStore); !ok {
		t.Error("Expected MemoryStore for memory backend")
	}

	store := NewFromConfig(ctx, StorageConfig{Backend: "file", DataDir: t.TempDir()})
	fb, ok := store.(*FallbackStore)
	if !ok {
		t.Fatalf("Expected FallbackStore, got %T", store)
	}
	if _, ok := fb.Primary().(*FileStore); !ok {
		t.Errorf("Expected FileStore primary, got %T", fb.Primary())
	}

	if _, ok := NewFromConfig(ctx, StorageConfig{Backend: "kv"}).(*MemoryStore); !ok {
		t.Error("Expected MemoryStore when kv credentials are missing")
	}
}

func TestStoreError(t *testing.T) {
	err := error(&StoreError{Backend: "kv", Op: "save", Key: "k", Err: errBackendDown})
	if !errors.Is(err, errBackendDown) {
		t.Error("Expected StoreError to unwrap")
	}
	if err.Error() != "kv store save k: backend down" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

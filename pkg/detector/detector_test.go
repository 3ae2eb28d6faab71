package detector

import (
	"context"
	"reflect"
	"testing"
	"time"

	"sitemap-watch/pkg/storage"
)

var now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func snap(urls ...string) *storage.Snapshot {
	return storage.NewSnapshot("x.io", urls, now)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func TestCompute_NewPageScenario(t *testing.T) {
	prev := snap("https://x.io/a", "https://x.io/b")
	cur := snap("https://x.io/a", "https://x.io/c-new-page")

	diff := NewEngine(nil).Compute(prev, cur)

	if !reflect.DeepEqual(diff.AddedURLs, []string{"https://x.io/c-new-page"}) {
		t.Errorf("Unexpected added URLs: %v", diff.AddedURLs)
	}
	if !reflect.DeepEqual(diff.RemovedURLs, []string{"https://x.io/b"}) {
		t.Errorf("Unexpected removed URLs: %v", diff.RemovedURLs)
	}
	if !contains(diff.Keywords, "new") {
		t.Errorf("Expected keyword 'new', got %v", diff.Keywords)
	}
	for _, stop := range []string{"com", "page", "io"} {
		if contains(diff.Keywords, stop) {
			t.Errorf("Did not expect keyword %q in %v", stop, diff.Keywords)
		}
	}
	if diff.Initial || !diff.HasChanges() {
		t.Errorf("Expected a non-initial diff with changes")
	}
}

func TestCompute_NoPrevious(t *testing.T) {
	diff := NewEngine(nil).Compute(nil, snap("https://x.io/a", "https://x.io/b"))

	if !diff.Initial {
		t.Error("Expected initial diff")
	}
	if len(diff.AddedURLs) != 0 || len(diff.RemovedURLs) != 0 || len(diff.Keywords) != 0 {
		t.Errorf("Expected empty diff, got %+v", diff)
	}
	if diff.HasChanges() {
		t.Error("Initial diff must not report changes")
	}
}

func TestCompute_DisjointAndSymmetric(t *testing.T) {
	cases := [][2][]string{
		{{"https://x.io/a", "https://x.io/b"}, {"https://x.io/b", "https://x.io/c"}},
		{{}, {"https://x.io/a"}},
		{{"https://x.io/a", "https://x.io/a"}, {"https://x.io/a"}},
		{{"https://x.io/1", "https://x.io/2", "https://x.io/3"}, {"https://x.io/4", "https://x.io/2", "https://x.io/4"}},
	}

	engine := NewEngine(nil)
	for i, c := range cases {
		a, b := snap(c[0]...), snap(c[1]...)
		ab := engine.Compute(a, b)
		ba := engine.Compute(b, a)

		for _, u := range ab.AddedURLs {
			if contains(ab.RemovedURLs, u) {
				t.Errorf("case %d: %s is both added and removed", i, u)
			}
		}
		if !reflect.DeepEqual(ab.AddedURLs, ba.RemovedURLs) {
			t.Errorf("case %d: added %v != reverse removed %v", i, ab.AddedURLs, ba.RemovedURLs)
		}
		if !reflect.DeepEqual(ab.RemovedURLs, ba.AddedURLs) {
			t.Errorf("case %d: removed %v != reverse added %v", i, ab.RemovedURLs, ba.AddedURLs)
		}
	}
}

func TestCompute_OrderFollowsCurrent(t *testing.T) {
	prev := snap("https://x.io/a")
	cur := snap("https://x.io/z", "https://x.io/a", "https://x.io/m", "https://x.io/z")

	diff := NewEngine(nil).Compute(prev, cur)
	if !reflect.DeepEqual(diff.AddedURLs, []string{"https://x.io/z", "https://x.io/m"}) {
		t.Errorf("Unexpected order: %v", diff.AddedURLs)
	}
}

func TestSnapshotHistory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	history := NewSnapshotHistory(store)

	first, prev, err := history.RecordSnapshot(ctx, "x.io", []string{"https://x.io/a"}, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}
	if prev != nil {
		t.Errorf("Expected no previous snapshot, got %+v", prev)
	}

	second, prev, err := history.RecordSnapshot(ctx, "x.io", []string{"https://x.io/a", "https://x.io/b"}, now)
	if err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}
	if prev == nil || prev.TimePeriod != first.TimePeriod {
		t.Fatalf("Expected previous period %s, got %+v", first.TimePeriod, prev)
	}

	// Re-running within the same hour overwrites and still compares to the earlier hour.
	_, prev, _ = history.RecordSnapshot(ctx, "x.io", []string{"https://x.io/a"}, now.Add(10*time.Minute))
	if prev == nil || prev.TimePeriod != first.TimePeriod {
		t.Errorf("Expected previous period %s on rerun, got %+v", first.TimePeriod, prev)
	}

	meta, err := history.GetSnapshotHistory(ctx, "x.io", 0)
	if err != nil {
		t.Fatalf("GetSnapshotHistory failed: %v", err)
	}
	if len(meta) != 2 || meta[0].TimePeriod != second.TimePeriod || meta[0].URLCount != 1 {
		t.Errorf("Unexpected history: %+v", meta)
	}

	meta, _ = history.GetSnapshotHistory(ctx, "x.io", 1)
	if len(meta) != 1 {
		t.Errorf("Expected limit to apply, got %d entries", len(meta))
	}
}

package storage

import (
	"sort"
	"strings"
	"time"

	"sitemap-watch/pkg/utils"
)

const (
	// PeriodLayout is the hourly bucket used for new snapshots.
	PeriodLayout = "2006-01-02_15"
	// DayLayout is the legacy day-only bucket, still accepted on read.
	DayLayout = "2006-01-02"
)

// Snapshot is an immutable capture of one site's URL set.
type Snapshot struct {
	Site       string    `json:"site"`
	TimePeriod string    `json:"timePeriod"`
	URLs       []string  `json:"urls"`
	TotalCount int       `json:"totalCount"`
	CapturedAt time.Time `json:"capturedAt"`
	Checksum   string    `json:"checksum,omitempty"`
}

// NewSnapshot copies urls so later mutation by the caller does not leak in.
func NewSnapshot(site string, urls []string, capturedAt time.Time) *Snapshot {
	copied := make([]string, len(urls))
	copy(copied, urls)
	return &Snapshot{
		Site:       site,
		TimePeriod: TimePeriodFor(capturedAt),
		URLs:       copied,
		TotalCount: len(copied),
		CapturedAt: capturedAt.UTC(),
		Checksum:   utils.URLSetChecksum(copied),
	}
}

// TimePeriodFor returns the UTC hourly bucket of t.
func TimePeriodFor(t time.Time) string {
	return t.UTC().Format(PeriodLayout)
}

// NormalizeSite maps a site name onto the key-safe alphabet [A-Za-z0-9_].
func NormalizeSite(site string) string {
	var b strings.Builder
	b.Grow(len(site))
	for _, r := range site {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ValidTimePeriod reports whether p is an hourly or legacy day bucket.
func ValidTimePeriod(p string) bool {
	if _, err := time.Parse(PeriodLayout, p); err == nil {
		return true
	}
	_, err := time.Parse(DayLayout, p)
	return err == nil
}

// periodBefore reports whether the date part of period is strictly before
// the UTC date of cutoff. Unparseable periods are never purged.
func periodBefore(period string, cutoff time.Time) bool {
	if len(period) < len(DayLayout) {
		return false
	}
	day, err := time.Parse(DayLayout, period[:len(DayLayout)])
	if err != nil {
		return false
	}
	return day.Before(cutoffDay(cutoff))
}

func cutoffDay(cutoff time.Time) time.Time {
	c := cutoff.UTC()
	return time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC)
}

// sortPeriodsDesc orders periods most recent first. The layouts sort
// lexically, and a day-only period sorts before hourly ones of that day.
func sortPeriodsDesc(periods []string) {
	sort.Sort(sort.Reverse(sort.StringSlice(periods)))
}

// mostRecentExcept picks the greatest period that is not excluded.
func mostRecentExcept(periods []string, excluded string) (string, bool) {
	best := ""
	for _, p := range periods {
		if p == excluded {
			continue
		}
		if p > best {
			best = p
		}
	}
	return best, best != ""
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.URLs = make([]string, len(s.URLs))
	copy(c.URLs, s.URLs)
	return &c
}

func dedupeSorted(values []string) []string {
	sort.Strings(values)
	out := values[:0]
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			out = append(out, v)
		}
	}
	return out
}

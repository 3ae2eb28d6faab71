package monitor

import (
	"errors"
	"time"

	"sitemap-watch/pkg/detector"
)

// ErrCycleInProgress is returned when a cycle is requested while another one
// is still running.
var ErrCycleInProgress = errors.New("monitoring cycle already in progress")

// SiteStatus is the terminal state of one site's pipeline.
type SiteStatus string

const (
	StatusChanged   SiteStatus = "changed"
	StatusInitial   SiteStatus = "initial"
	StatusUnchanged SiteStatus = "unchanged"
	StatusEmpty     SiteStatus = "empty"
	StatusFailed    SiteStatus = "failed"
)

// SiteResult is what one site contributed to a cycle. Diff is nil unless the
// site reached the diff stage.
type SiteResult struct {
	SiteID     string         `json:"siteId"`
	Site       string         `json:"site"`
	SitemapURL string         `json:"sitemapUrl"`
	Status     SiteStatus     `json:"status"`
	URLCount   int            `json:"urlCount"`
	Diff       *detector.Diff `json:"diff,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// CycleReport summarizes one monitoring cycle.
type CycleReport struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Results   []SiteResult  `json:"results"`
	Changed   int           `json:"changed"`
	Initial   int           `json:"initial"`
	Unchanged int           `json:"unchanged"`
	Empty     int           `json:"empty"`
	Failed    int           `json:"failed"`
	Purged    int           `json:"purged"`
	Message   string        `json:"message,omitempty"`
	Delivered bool          `json:"delivered"`
	Error     string        `json:"error,omitempty"`
}

func (r *CycleReport) tally() {
	r.Changed, r.Initial, r.Unchanged, r.Empty, r.Failed = 0, 0, 0, 0, 0
	for _, res := range r.Results {
		switch res.Status {
		case StatusChanged:
			r.Changed++
		case StatusInitial:
			r.Initial++
		case StatusUnchanged:
			r.Unchanged++
		case StatusEmpty:
			r.Empty++
		case StatusFailed:
			r.Failed++
		}
	}
}

// Diffs returns the diffs of every site that reached the diff stage.
func (r *CycleReport) Diffs() []*detector.Diff {
	diffs := make([]*detector.Diff, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Diff != nil {
			diffs = append(diffs, res.Diff)
		}
	}
	return diffs
}

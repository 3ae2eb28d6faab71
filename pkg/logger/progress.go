package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressReporter logs how far a batch of work has advanced. Reports are
// throttled to one per interval, plus a final one on completion.
type ProgressReporter struct {
	mu          sync.Mutex
	total       int
	current     int
	description string
	interval    time.Duration
	startTime   time.Time
	lastReport  time.Time
	logger      *Logger
}

func NewProgressReporter(total int, description string, interval time.Duration) *ProgressReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	now := time.Now()
	return &ProgressReporter{
		total:       total,
		description: description,
		interval:    interval,
		startTime:   now,
		lastReport:  now,
		logger:      GetLogger().WithField("component", "progress"),
	}
}

// Step records one finished item.
func (pr *ProgressReporter) Step() {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	pr.current++
	now := time.Now()
	if now.Sub(pr.lastReport) >= pr.interval || pr.current >= pr.total {
		pr.report()
		pr.lastReport = now
	}
}

// Progress returns finished and total item counts.
func (pr *ProgressReporter) Progress() (current, total int) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.current, pr.total
}

// report must be called with the lock held.
func (pr *ProgressReporter) report() {
	percentage := 100.0
	if pr.total > 0 {
		percentage = float64(pr.current) / float64(pr.total) * 100
	}
	elapsed := time.Since(pr.startTime)

	fields := map[string]interface{}{
		"current": pr.current,
		"total":   pr.total,
		"elapsed": elapsed.Round(time.Millisecond).String(),
	}
	if pr.current > 0 && pr.current < pr.total {
		remaining := time.Duration(pr.total-pr.current) * (elapsed / time.Duration(pr.current))
		fields["eta"] = remaining.Round(time.Second).String()
	}

	pr.logger.WithFields(fields).Info(fmt.Sprintf("%s: %d/%d (%.1f%%)", pr.description, pr.current, pr.total, percentage))
}

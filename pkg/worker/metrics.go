package worker

import (
	"sync/atomic"
	"time"
)

// PoolMetrics accumulates task counters across every Run of a pool.
type PoolMetrics struct {
	TasksSubmitted atomic.Uint64
	TasksCompleted atomic.Uint64
	TasksFailed    atomic.Uint64

	TotalDuration atomic.Uint64 // in nanoseconds
	MaxDuration   atomic.Uint64 // in nanoseconds

	StartTime time.Time
}

func NewPoolMetrics() *PoolMetrics {
	return &PoolMetrics{StartTime: time.Now()}
}

func (pm *PoolMetrics) IncrementTasksSubmitted() {
	pm.TasksSubmitted.Add(1)
}

// RecordTaskResult records the result of task execution
func (pm *PoolMetrics) RecordTaskResult(result Result) {
	if result.Error != nil {
		pm.TasksFailed.Add(1)
	} else {
		pm.TasksCompleted.Add(1)
	}

	nanos := uint64(result.Duration.Nanoseconds())
	pm.TotalDuration.Add(nanos)
	for {
		current := pm.MaxDuration.Load()
		if nanos <= current || pm.MaxDuration.CompareAndSwap(current, nanos) {
			break
		}
	}
}

// GetSnapshot returns a snapshot of current metrics
func (pm *PoolMetrics) GetSnapshot() MetricsSnapshot {
	submitted := pm.TasksSubmitted.Load()
	completed := pm.TasksCompleted.Load()
	failed := pm.TasksFailed.Load()

	var avgDuration time.Duration
	if finished := completed + failed; finished > 0 {
		avgDuration = time.Duration(pm.TotalDuration.Load() / finished)
	}

	var successRate float64
	if submitted > 0 {
		successRate = float64(completed) / float64(submitted)
	}

	return MetricsSnapshot{
		TasksSubmitted:  submitted,
		TasksCompleted:  completed,
		TasksFailed:     failed,
		SuccessRate:     successRate,
		AverageDuration: avgDuration,
		MaxDuration:     time.Duration(pm.MaxDuration.Load()),
		Uptime:          time.Since(pm.StartTime),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	TasksSubmitted  uint64        `json:"tasks_submitted"`
	TasksCompleted  uint64        `json:"tasks_completed"`
	TasksFailed     uint64        `json:"tasks_failed"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	Uptime          time.Duration `json:"uptime"`
}

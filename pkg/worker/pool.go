package worker

import (
	"context"
	"sync"
	"time"

	"sitemap-watch/pkg/logger"
)

// Task is one unit of work. Fn receives a context bounded by the pool's
// per-task timeout.
type Task struct {
	ID string
	Fn func(ctx context.Context) error
}

// Result is the outcome of a task. Results are returned in task order.
type Result struct {
	TaskID   string
	Error    error
	Duration time.Duration
}

type PoolConfig struct {
	Workers     int
	TaskTimeout time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:     8,
		TaskTimeout: 2 * time.Minute,
	}
}

// Pool runs batches of tasks with bounded concurrency. A panic in one task
// is recovered into a *PanicError and does not affect the others.
type Pool struct {
	config  PoolConfig
	metrics *PoolMetrics
	log     *logger.Logger
}

func NewPool(config PoolConfig) *Pool {
	defaults := DefaultPoolConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = defaults.TaskTimeout
	}
	return &Pool{
		config:  config,
		metrics: NewPoolMetrics(),
		log:     logger.GetLogger().WithField("component", "worker_pool"),
	}
}

// Run executes every task and blocks until all have finished.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	sem := make(chan struct{}, p.config.Workers)
	var wg sync.WaitGroup

	for i, task := range tasks {
		p.metrics.IncrementTasksSubmitted()
		wg.Add(1)
		go func(idx int, task Task) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = p.execute(ctx, task)
		}(i, task)
	}
	wg.Wait()

	return results
}

func (p *Pool) Metrics() MetricsSnapshot {
	return p.metrics.GetSnapshot()
}

func (p *Pool) Workers() int {
	return p.config.Workers
}

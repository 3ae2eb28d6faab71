package worker

import (
	"context"
	"fmt"
	"time"
)

// execute runs one task under the per-task timeout with panic recovery.
func (p *Pool) execute(ctx context.Context, task Task) Result {
	start := time.Now()

	taskCtx, cancel := context.WithTimeout(ctx, p.config.TaskTimeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.WithFields(map[string]interface{}{
					"task_id": task.ID,
					"panic":   fmt.Sprint(r),
				}).Error("Task panicked")
				err = &PanicError{Value: r}
			}
		}()

		err = task.Fn(taskCtx)
	}()

	result := Result{
		TaskID:   task.ID,
		Error:    err,
		Duration: time.Since(start),
	}
	p.metrics.RecordTaskResult(result)

	logFields := map[string]interface{}{
		"task_id":  task.ID,
		"duration": result.Duration.String(),
	}
	if err != nil {
		logFields["error"] = err.Error()
		p.log.WithFields(logFields).Warn("Task completed with error")
	} else {
		p.log.WithFields(logFields).Debug("Task completed successfully")
	}

	return result
}

// PanicError wraps a panic value as an error
type PanicError struct {
	Value interface{}
}

func (pe *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", pe.Value)
}

package qhybrid

import (
	"context"
	"fmt"
	"time"

	"github.com/theapemachine/errnie"
)

// Worker processes jobs
type Worker struct {
	pool *Pool
	id   int
}

func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.pool.jobs:
			value, attempts, err := w.processJob(job)
			job.result <- Result{
				ID:        job.ID,
				Value:     value,
				Error:     err,
				Attempts:  attempts,
				CreatedAt: time.Now(),
			}
			close(job.result)
		}
	}
}

func (w *Worker) processJob(job Job) (any, int, error) {
	result, err := w.executeWithRetries(&job)
	w.pool.metrics.recordJobExecution(job.StartTime, err == nil, job.Attempt)
	return result, job.Attempt, err
}

func (w *Worker) executeWithRetries(job *Job) (any, error) {
	for job.Attempt = 0; job.Attempt < job.RetryPolicy.MaxAttempts; {
		if job.Attempt > 0 {
			delay := job.RetryPolicy.Strategy.NextDelay(job.Attempt)
			errnie.Debug("job %s retrying attempt %d after %v", job.ID, job.Attempt+1, delay)
			time.Sleep(delay)
		}

		result, err := w.execute(job)
		job.Attempt++
		if err == nil {
			return result, nil
		}

		job.LastError = err
		if job.RetryPolicy.Filter != nil && !job.RetryPolicy.Filter(err) {
			break
		}
	}

	if job.Attempt > 1 {
		return nil, fmt.Errorf("all %d attempts failed for job %s: %w", job.Attempt, job.ID, job.LastError)
	}
	return nil, job.LastError
}

// execute turns a panicking job into an error so one bad sample cannot take
// the worker down.
func (w *Worker) execute(job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()

	return job.Fn()
}

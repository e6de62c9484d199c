package qhybrid

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/theapemachine/errnie"
)

/*
Pool is a fixed-size worker pool for the embarrassingly parallel loops of the
hybrid stack: per-sample circuit runs, per-parameter gradient shifts and
pairwise kernel entries. Every job works on its own StateVector values, so
jobs share nothing mutable; callers synchronize on ForEach, which is the
reduction barrier between parallel work and sequential updates.
*/
type Pool struct {
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	jobs       chan Job
	metrics    *Metrics
	config     *Config
	workerList []*Worker
	closeOnce  sync.Once
}

/*
NewPool starts config.Workers workers, or one per CPU when that is zero.
A nil config uses NewConfig.
*/
func NewPool(ctx context.Context, config *Config) *Pool {
	if config == nil {
		config = NewConfig()
	}

	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(chan Job, workers*10),
		metrics:    NewMetrics(),
		config:     config,
		workerList: make([]*Worker, 0, workers),
	}

	for i := 0; i < workers; i++ {
		p.startWorker(i)
	}

	errnie.Debug("started pool with %d workers", workers)
	return p
}

func (p *Pool) startWorker(id int) {
	worker := &Worker{pool: p, id: id}
	p.workerList = append(p.workerList, worker)

	p.metrics.mu.Lock()
	p.metrics.WorkerCount++
	p.metrics.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		worker.run(p.ctx)
	}()
}

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.workerList) }

func (p *Pool) Metrics() *Metrics { return p.metrics }

func (p *Pool) newJob(id string, fn func() (any, error), opts []JobOption) Job {
	job := Job{
		ID:          id,
		Fn:          fn,
		RetryPolicy: noRetry(),
		StartTime:   time.Now(),
		result:      make(chan Result, 1),
	}
	for _, opt := range opts {
		opt(&job)
	}
	return job
}

/*
Schedule queues fn and returns a channel that yields its Result once. When
the queue stays full for the configured scheduling timeout, the channel
yields a scheduling error instead.
*/
func (p *Pool) Schedule(id string, fn func() (any, error), opts ...JobOption) chan Result {
	job := p.newJob(id, fn, opts)

	if err := p.ctx.Err(); err != nil {
		return failedResult(id, fmt.Errorf("pool closed: %w", err))
	}

	timer := time.NewTimer(p.getSchedulingTimeout())
	defer timer.Stop()

	select {
	case p.jobs <- job:
		return job.result
	case <-p.ctx.Done():
		return failedResult(id, fmt.Errorf("pool closed: %w", p.ctx.Err()))
	case <-timer.C:
		p.metrics.recordSchedulingFailure()
		return failedResult(id, fmt.Errorf("job %s scheduling timeout", id))
	}
}

/*
ForEach runs fn(0) .. fn(n-1) on the pool and waits for all of them. It
stops queueing new indices once ctx is done, but always waits for what it
queued. The returned error joins every failure.

Unlike Schedule, ForEach blocks on a full queue instead of timing out: a
batch is one unit of work and must not lose members to backpressure. With
config.Retries above 1, a member that fails transiently is retried before
its error counts.
*/
func (p *Pool) ForEach(ctx context.Context, n int, fn func(i int) error) error {
	batch := uuid.NewString()
	opts := p.batchOptions()
	pending := make([]chan Result, 0, n)
	var errs []error

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("pool closed: %w", err))
			break
		}

		job := p.newJob(fmt.Sprintf("%s/%d", batch, i), func() (any, error) {
			return nil, fn(i)
		}, opts)

		select {
		case p.jobs <- job:
			pending = append(pending, job.result)
			continue
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		case <-p.ctx.Done():
			errs = append(errs, fmt.Errorf("pool closed: %w", p.ctx.Err()))
		}
		break
	}

	for _, ch := range pending {
		select {
		case res := <-ch:
			if res.Error != nil {
				errs = append(errs, res.Error)
			}
		case <-p.ctx.Done():
			errs = append(errs, fmt.Errorf("pool closed: %w", p.ctx.Err()))
			return errors.Join(errs...)
		}
	}

	return errors.Join(errs...)
}

/*
batchOptions applies config.Retries to ForEach members. Only failures that
can change on a second attempt are retried: a malformed argument, a shape
mismatch or a cancelled context fails the same way every time.
*/
func (p *Pool) batchOptions() []JobOption {
	if p.config == nil || p.config.Retries <= 1 {
		return nil
	}

	backoff := p.config.RetryBackoff
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}

	return []JobOption{
		WithRetry(p.config.Retries, &ExponentialBackoff{Initial: backoff}),
		WithRetryFilter(transient),
	}
}

func transient(err error) bool {
	var (
		ae *ArgumentError
		dm *DimensionMismatchError
		ig *InvalidGateError
	)

	switch {
	case errors.As(err, &ae), errors.As(err, &dm), errors.As(err, &ig):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

/*
forEach is ForEach on p, or a plain loop when p is nil: without a pool the
stack runs single-threaded.
*/
func forEach(ctx context.Context, p *Pool, n int, fn func(i int) error) error {
	if p != nil {
		return p.ForEach(ctx, n, fn)
	}

	var errs []error
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := safeCall(fn, i); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// safeCall gives the sequential path the panic isolation workers have.
func safeCall(fn func(i int) error, i int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("index %d panicked: %v", i, r)
		}
	}()
	return fn(i)
}

func (p *Pool) getSchedulingTimeout() time.Duration {
	if p.config != nil && p.config.SchedulingTimeout > 0 {
		return p.config.SchedulingTimeout
	}
	return 5 * time.Second
}

// Close stops every worker and waits for them to exit. Safe to call twice.
func (p *Pool) Close() {
	if p == nil {
		return
	}

	p.closeOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		errnie.Debug("pool closed after %d jobs", p.metrics.JobCount)
	})
}

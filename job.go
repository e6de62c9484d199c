package qhybrid

import "time"

// Job represents work to be done
type Job struct {
	ID          string
	Fn          func() (any, error)
	RetryPolicy *RetryPolicy
	Attempt     int
	LastError   error
	StartTime   time.Time

	result chan Result
}

// JobOption is a function type for configuring jobs
type JobOption func(*Job)

// Result carries the outcome of one Job back to whoever scheduled it.
type Result struct {
	ID        string
	Value     any
	Error     error
	Attempts  int
	CreatedAt time.Time
}

func failedResult(id string, err error) chan Result {
	ch := make(chan Result, 1)
	ch <- Result{ID: id, Error: err, CreatedAt: time.Now()}
	close(ch)
	return ch
}

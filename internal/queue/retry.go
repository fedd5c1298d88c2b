package queue

import (
	"time"

	"semefo/internal/config"
	"semefo/internal/services"
)

// RetryPolicy decides what happens to a task after a failed run.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// PolicyFromConfig builds the retry policy from the [queue] section.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		Base:        time.Duration(cfg.Queue.RetryBaseSeconds) * time.Second,
		Max:         time.Duration(cfg.Queue.RetryMaxSeconds) * time.Second,
	}
}

// Backoff returns the delay before attempt+1 given attempt runs so far.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

// ShouldRetry reports whether a task that failed with err after attempts
// runs gets another one. Tasks enqueued with a positive max_attempts use that
// budget instead of the policy's.
func (p RetryPolicy) ShouldRetry(task *Task, err error) bool {
	if task == nil || !services.Retryable(err) {
		return false
	}
	budget := p.MaxAttempts
	if task.MaxAttempts > 0 {
		budget = task.MaxAttempts
	}
	return task.Attempts < budget
}

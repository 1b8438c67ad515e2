package worker

import (
	"time"

	"turnero/internal/config"
)

// RetryPolicy is the backoff applied to failed sync tasks.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func retryPolicyFrom(cfg config.WorkerConfig) RetryPolicy {
	p := RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = 5
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 2 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Minute
	}
	if p.BackoffFactor <= 1 {
		p.BackoffFactor = 2
	}
	return p
}

// Exhausted reports whether a task that just failed its attempt-th run
// goes to the dead letter.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// NextDelay is the wait before run attempt+1. attempt is 1-based.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	factor := r.BackoffFactor
	if factor <= 1 {
		factor = 2
	}

	d := r.InitialDelay
	for i := 1; i < attempt && d > 0 && (r.MaxDelay <= 0 || d < r.MaxDelay); i++ {
		d = time.Duration(float64(d) * factor)
	}
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

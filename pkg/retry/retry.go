// Package retry runs infrastructure operations (connects, pings) under
// exponential backoff with jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

// Config contains retry configuration
type Config struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// JitterFactor in [0,1]; 0.1 means +/-10%
	JitterFactor float64
}

// DefaultConfig returns 1s, 2s, 4s... capped at 30s, five retries
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Fixed returns a config that waits the same interval between attempts
func Fixed(maxRetries int, interval time.Duration) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: interval,
		MaxInterval:     interval,
		Multiplier:      1,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// PermanentError stops the retry loop immediately
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks an error as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Result describes a finished retry loop
type Result struct {
	Err           error
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

// Callback is invoked before each wait
type Callback func(attempt int, err error, next time.Duration)

// Retrier handles retry logic with exponential backoff
type Retrier struct {
	config *Config
}

// New creates a Retrier, filling zero values with defaults
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	c.JitterFactor = math.Max(0, math.Min(1, c.JitterFactor))
	return &Retrier{config: &c}
}

// Do executes op until it succeeds, returns a permanent error, runs out of
// retries or ctx is done
func (r *Retrier) Do(ctx context.Context, op Operation, cb Callback) *Result {
	start := time.Now()
	res := &Result{}

	finish := func(err error) *Result {
		res.Err = err
		res.TotalDuration = time.Since(start)
		return res
	}

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		res.Attempts = attempt + 1
		if ctx.Err() != nil {
			return finish(ErrContextCanceled)
		}

		err := op(ctx)
		if err == nil {
			return finish(nil)
		}
		res.LastError = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			res.LastError = perm.Err
			return finish(perm.Err)
		}

		if attempt == r.config.MaxRetries {
			break
		}

		wait := r.interval(attempt)
		if cb != nil {
			cb(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return finish(ErrContextCanceled)
		case <-timer.C:
		}
	}

	return finish(ErrMaxRetriesExceeded)
}

func (r *Retrier) interval(attempt int) time.Duration {
	d := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))
	if r.config.JitterFactor > 0 {
		j := d * r.config.JitterFactor
		d += (rand.Float64()*2 - 1) * j
	}
	if d > float64(r.config.MaxInterval) {
		d = float64(r.config.MaxInterval)
	}
	if d < 0 {
		d = float64(r.config.InitialInterval)
	}
	return time.Duration(d)
}

// Do is a convenience wrapper returning the final error. The last
// operation error is preferred over ErrMaxRetriesExceeded so callers see
// the real cause.
func Do(ctx context.Context, config *Config, op Operation) error {
	res := New(config).Do(ctx, op, nil)
	if res.Err == nil {
		return nil
	}
	if errors.Is(res.Err, ErrMaxRetriesExceeded) && res.LastError != nil {
		return res.LastError
	}
	return res.Err
}

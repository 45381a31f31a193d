package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(retries int) *Config {
	return &Config{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestNew_WithZeroValues(t *testing.T) {
	r := New(&Config{JitterFactor: 3})

	if r.config.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want 1s", r.config.InitialInterval)
	}
	if r.config.MaxInterval != 30*time.Second {
		t.Errorf("MaxInterval = %v, want 30s", r.config.MaxInterval)
	}
	if r.config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", r.config.Multiplier)
	}
	if r.config.JitterFactor != 1 {
		t.Errorf("JitterFactor = %f, want clamped to 1", r.config.JitterFactor)
	}
}

func TestRetrier_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	res := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	}, nil)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
}

func TestRetrier_MaxRetriesExceeded(t *testing.T) {
	calls := 0
	var callbacks []int
	res := New(fastConfig(2)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("down")
	}, func(attempt int, err error, next time.Duration) {
		callbacks = append(callbacks, attempt)
	})

	if !errors.Is(res.Err, ErrMaxRetriesExceeded) {
		t.Errorf("Err = %v, want ErrMaxRetriesExceeded", res.Err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(callbacks) != 2 {
		t.Errorf("callbacks = %v, want 2 entries", callbacks)
	}
}

func TestRetrier_PermanentStops(t *testing.T) {
	cause := errors.New("bad credentials")
	calls := 0
	res := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	}, nil)

	if !errors.Is(res.Err, cause) {
		t.Errorf("Err = %v, want %v", res.Err, cause)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetrier_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(fastConfig(3)).Do(ctx, func(ctx context.Context) error { return nil }, nil)
	if !errors.Is(res.Err, ErrContextCanceled) {
		t.Errorf("Err = %v, want ErrContextCanceled", res.Err)
	}
}

func TestInterval_Capped(t *testing.T) {
	r := New(&Config{InitialInterval: time.Second, MaxInterval: 3 * time.Second, Multiplier: 2})
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		if got := r.interval(i); got != w {
			t.Errorf("interval(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestDo_ReturnsLastError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Do(context.Background(), fastConfig(1), func(ctx context.Context) error { return cause })
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want %v", err, cause)
	}
}

func TestFixed(t *testing.T) {
	r := New(Fixed(2, 10*time.Millisecond))
	for i := 0; i < 3; i++ {
		if got := r.interval(i); got != 10*time.Millisecond {
			t.Errorf("interval(%d) = %v, want 10ms", i, got)
		}
	}
}

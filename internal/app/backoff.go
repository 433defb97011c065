package app

import (
	"context"
	"time"
)

// Default backoff configuration values.
const (
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 30 * time.Second
)

// backoff computes exponential delays: base * 2^n, saturating at max.
// Delays are deterministic so retry schedules stay strictly increasing
// until saturation.
type backoff struct {
	base time.Duration
	max  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	return &backoff{base: base, max: max}
}

// Delay returns base * 2^attempt, saturated at max.
func (b *backoff) Delay(attempt int) time.Duration {
	d := b.base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}
	if d > b.max {
		d = b.max
	}
	return d
}

// sleep waits for d, interruptible only by ctx cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

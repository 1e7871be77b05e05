package retry

import (
	"context"
	"sync"
	"time"
)

// Sleeper waits out retry delays. Implementations must return early with
// the context error when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper waits on a real timer.
type TimerSleeper struct{}

// Sleep implements Sleeper.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// VirtualSleeper records requested delays and returns immediately, so
// tests can fast-forward retries without changing attempt counts.
type VirtualSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

// NewVirtualSleeper returns an empty VirtualSleeper.
func NewVirtualSleeper() *VirtualSleeper {
	return &VirtualSleeper{}
}

// Sleep implements Sleeper.
func (v *VirtualSleeper) Sleep(ctx context.Context, d time.Duration) error {
	v.mu.Lock()
	v.delays = append(v.delays, d)
	v.mu.Unlock()
	return ctx.Err()
}

// Delays returns every delay requested so far.
func (v *VirtualSleeper) Delays() []time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]time.Duration, len(v.delays))
	copy(out, v.delays)
	return out
}

// Total returns the sum of requested delays.
func (v *VirtualSleeper) Total() time.Duration {
	var total time.Duration
	for _, d := range v.Delays() {
		total += d
	}
	return total
}

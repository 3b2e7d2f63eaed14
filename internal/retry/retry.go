// Package retry holds the reconnect budget shared in shape, but never in
// state, by the broker and store supervisors.
package retry

import (
	"context"
	"time"
)

// Policy is one supervisor's reconnect budget: disabled, bounded to a
// remaining count, or unbounded, always with a fixed delay between attempts.
// Build a separate Policy per supervisor even when they read the same
// configured maximum.
type Policy struct {
	enabled   bool
	unbounded bool
	remaining int
	delay     time.Duration
}

// NewPolicy builds a budget. A maximum of zero or less means retry forever.
func NewPolicy(enabled bool, maxRetries int, delay time.Duration) *Policy {
	return &Policy{
		enabled:   enabled,
		unbounded: maxRetries <= 0,
		remaining: maxRetries,
		delay:     delay,
	}
}

// Next reports whether another attempt may be scheduled, consuming one retry
// from a bounded budget. Once it returns false it keeps returning false.
func (p *Policy) Next() bool {
	if !p.enabled {
		return false
	}
	if p.unbounded {
		return true
	}
	if p.remaining <= 0 {
		return false
	}
	p.remaining--
	return true
}

// Wait parks until the fixed delay elapses or ctx is cancelled.
func (p *Policy) Wait(ctx context.Context) error {
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Disable suppresses all future retries. Used on user interrupt.
func (p *Policy) Disable() {
	p.enabled = false
}

// Delay is the fixed wait between attempts.
func (p *Policy) Delay() time.Duration {
	return p.delay
}

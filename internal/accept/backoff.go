// File: internal/accept/backoff.go
// Package accept runs the accept loop shared by listening handles.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package accept

import "time"

// Backoff bounds applied after transient accept failures.
const (
	InitialBackoff = 5 * time.Millisecond
	MaxBackoff     = 1000 * time.Millisecond
)

// Backoff is the delay state of one failure sequence. The zero value is
// the steady state.
type Backoff struct {
	delay time.Duration
}

// Next doubles the delay, starting at InitialBackoff and capped at
// MaxBackoff, and returns it.
func (b *Backoff) Next() time.Duration {
	if b.delay == 0 {
		b.delay = InitialBackoff
	} else {
		b.delay *= 2
		if b.delay > MaxBackoff {
			b.delay = MaxBackoff
		}
	}
	return b.delay
}

// Reset returns to the steady state.
func (b *Backoff) Reset() { b.delay = 0 }

// Delay returns the current delay; ok is false in the steady state.
func (b *Backoff) Delay() (d time.Duration, ok bool) {
	return b.delay, b.delay != 0
}

// EffectiveBacklog rounds backlog+1 up to a power of two.
func EffectiveBacklog(backlog int) int {
	if backlog < 0 {
		backlog = 0
	}
	v := uint32(backlog + 1)
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return int(v)
}

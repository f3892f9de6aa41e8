// File: loop/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import "runtime"

// WithCPU pins the loop goroutine's OS thread to one logical CPU while
// Run is active. Platforms without thread affinity log a warning and
// run unpinned.
func WithCPU(cpu int) Option {
	return func(l *Loop) {
		l.cpu = cpu
	}
}

// pin locks the calling goroutine to its thread and binds the thread to
// l.cpu. The returned func undoes the lock.
func (l *Loop) pin() func() {
	if l.cpu < 0 {
		return func() {}
	}
	runtime.LockOSThread()
	if err := setAffinity(l.cpu); err != nil {
		l.log.Warn().Err(err).Int("cpu", l.cpu).Msg("cpu affinity not applied")
	} else {
		l.log.Debug().Int("cpu", l.cpu).Msg("loop pinned")
	}
	return runtime.UnlockOSThread
}

// File: internal/accept/acceptor_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package accept_test

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/fake"
	"github.com/momentics/hioload-wrap/internal/accept"
	"github.com/momentics/hioload-wrap/internal/clock"
	"github.com/momentics/hioload-wrap/loop"
	"github.com/rs/zerolog"
)

type recorder struct {
	mu       sync.Mutex
	conns    []net.Conn
	statuses []int
	accepted chan struct{}
	failed   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{accepted: make(chan struct{}, 16), failed: make(chan struct{}, 16)}
}

func (r *recorder) onAccept(c net.Conn) {
	r.mu.Lock()
	r.conns = append(r.conns, c)
	r.mu.Unlock()
	r.accepted <- struct{}{}
}

func (r *recorder) onError(status int) {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
	r.failed <- struct{}{}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func setup(t *testing.T, clk clock.Clock, connections func() int) (*fake.Listener, *recorder, *accept.Acceptor) {
	t.Helper()
	lp := loop.New().Start()
	t.Cleanup(lp.Stop)
	ln := fake.NewListener()
	rec := newRecorder()
	acc := accept.New(accept.Config{
		Source:      ln,
		Backlog:     4,
		Provider:    api.ProviderTCPServerWrap,
		Loop:        lp,
		Clock:       clk,
		Logger:      zerolog.Nop(),
		Connections: connections,
		OnAccept:    rec.onAccept,
		OnError:     rec.onError,
	})
	t.Cleanup(func() {
		acc.Stop()
		ln.Close()
	})
	return ln, rec, acc
}

func TestAcceptor_DeliversInAcceptOrder(t *testing.T) {
	ln, rec, acc := setup(t, clock.Real(), nil)
	var want []net.Conn
	for i := 0; i < 3; i++ {
		a, b := net.Pipe()
		t.Cleanup(func() { a.Close(); b.Close() })
		want = append(want, a)
		ln.Push(a)
	}
	acc.Start()
	for i := 0; i < 3; i++ {
		waitFor(t, rec.accepted, "accept")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := range want {
		if rec.conns[i] != want[i] {
			t.Fatalf("connection %d delivered out of order", i)
		}
	}
}

func TestAcceptor_BackoffSequenceAndReset(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	ln, rec, acc := setup(t, clk, nil)
	for i := 0; i < 10; i++ {
		ln.Fail(errors.New("emfile"))
	}
	acc.Start()

	for n := 1; n <= 10; n++ {
		waitFor(t, rec.failed, "accept failure")
		clk.WaitForTimers(1)
		d, ok := acc.BackoffDelay()
		want := accept.InitialBackoff << (n - 1)
		if want > accept.MaxBackoff {
			want = accept.MaxBackoff
		}
		if !ok || d != want {
			t.Fatalf("failure %d: delay %v (ok=%v), want %v", n, d, ok, want)
		}
		if n == 10 {
			a, b := net.Pipe()
			t.Cleanup(func() { a.Close(); b.Close() })
			ln.Push(a)
		}
		clk.Advance(d)
	}

	waitFor(t, rec.accepted, "accept after recovery")
	if _, ok := acc.BackoffDelay(); ok {
		t.Fatal("successful accept should reset backoff")
	}

	ln.Fail(errors.New("emfile"))
	waitFor(t, rec.failed, "accept failure after reset")
	clk.WaitForTimers(1)
	if d, _ := acc.BackoffDelay(); d != accept.InitialBackoff {
		t.Fatalf("delay after reset = %v, want %v", d, accept.InitialBackoff)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, s := range rec.statuses {
		if s != api.UNKNOWN {
			t.Fatalf("failure reported as %d, want UNKNOWN", s)
		}
	}
}

func TestAcceptor_BacklogFullBacksOffWithoutAccepting(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	ln, _, acc := setup(t, clk, func() int { return 5 })
	acc.Start()
	clk.WaitForTimers(1)
	if d, ok := acc.BackoffDelay(); !ok || d != accept.InitialBackoff {
		t.Fatalf("delay = %v (ok=%v), want %v", d, ok, accept.InitialBackoff)
	}
	if n := ln.Attempts(); n != 0 {
		t.Fatalf("accepted %d times while over backlog", n)
	}
}

func TestAcceptor_StopBeforeFirstTickIsSilent(t *testing.T) {
	lp := loop.New()
	defer lp.Stop()
	ln := fake.NewListener()
	defer ln.Close()
	rec := newRecorder()
	acc := accept.New(accept.Config{
		Source:   ln,
		Backlog:  4,
		Provider: api.ProviderTCPServerWrap,
		Loop:     lp,
		Logger:   zerolog.Nop(),
		OnAccept: rec.onAccept,
		OnError:  rec.onError,
	})
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	ln.Push(a)

	// The loop is not running yet, so Stop lands before the deferred start.
	acc.Start()
	acc.Stop()
	lp.Start()

	select {
	case <-rec.accepted:
		t.Fatal("connection delivered after stop")
	case <-rec.failed:
		t.Fatal("error reported after stop")
	case <-time.After(50 * time.Millisecond):
	}
	if n := ln.Attempts(); n != 0 {
		t.Fatalf("listener accepted %d times after stop", n)
	}
}

func TestAcceptor_ClosedListenerStopsSilently(t *testing.T) {
	ln, rec, acc := setup(t, clock.Real(), nil)
	acc.Start()
	ln.Close()
	select {
	case <-rec.failed:
		t.Fatal("closed listener reported as accept failure")
	case <-time.After(50 * time.Millisecond):
	}
}

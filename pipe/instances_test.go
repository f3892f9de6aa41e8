// File: pipe/instances_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipe

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

type fakeInstance struct {
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func (i *fakeInstance) Wait() (net.Conn, error) {
	select {
	case c := <-i.conns:
		return c, nil
	case <-i.closed:
		return nil, errors.New("instance closed")
	}
}

func (i *fakeInstance) Close() error {
	i.once.Do(func() { close(i.closed) })
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeInstance
	firsts  int
	fail    bool
}

func (f *fakeFactory) Create(first bool) (instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("create failed")
	}
	if first {
		f.firsts++
	}
	inst := &fakeInstance{conns: make(chan net.Conn, 1), closed: make(chan struct{})}
	f.created = append(f.created, inst)
	return inst, nil
}

// Wake connects a client to the most recent live instance.
func (f *fakeFactory) Wake() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.created) - 1; i >= 0; i-- {
		select {
		case <-f.created[i].closed:
			continue
		default:
		}
		a, _ := net.Pipe()
		f.created[i].conns <- a
		return nil
	}
	return errors.New("no instance to wake")
}

func (f *fakeFactory) Addr() net.Addr { return &net.UnixAddr{Name: "fake", Net: "unix"} }

func (f *fakeFactory) instance(i int) *fakeInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[i]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func TestInstancePool_CyclesAndReplaces(t *testing.T) {
	f := &fakeFactory{}
	p, err := newInstancePool(f, DefaultPendingInstances)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if f.count() != DefaultPendingInstances || f.firsts != 1 {
		t.Fatalf("created %d instances, %d first", f.count(), f.firsts)
	}

	for round := 0; round < 3; round++ {
		a, b := net.Pipe()
		defer b.Close()
		f.instance(round).conns <- a
		c, err := p.Accept()
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if c != a {
			t.Fatalf("round %d: accepted wrong connection", round)
		}
		if n := p.Size(); n != DefaultPendingInstances {
			t.Fatalf("round %d: pool size %d", round, n)
		}
	}
	if f.count() != DefaultPendingInstances+3 {
		t.Fatalf("created %d instances, want %d", f.count(), DefaultPendingInstances+3)
	}
}

func TestInstancePool_CloseWakesWaiter(t *testing.T) {
	f := &fakeFactory{}
	p, err := newInstancePool(f, 2)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := p.Accept()
		done <- err
	}()
	deadline := time.Now().Add(5 * time.Second)
	for {
		p.mu.Lock()
		waiting := p.waiting != nil
		p.mu.Unlock()
		if waiting {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Accept never started waiting")
		}
		time.Sleep(time.Millisecond)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("Accept after close = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not wake Accept")
	}
	if _, err := p.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("Accept on closed pool = %v", err)
	}
}

func TestInstancePool_CreateFailure(t *testing.T) {
	f := &fakeFactory{fail: true}
	if _, err := newInstancePool(f, 2); err == nil {
		t.Fatal("expected error when no instance can be created")
	}
}

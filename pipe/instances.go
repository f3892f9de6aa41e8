// File: pipe/instances.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pending-instance pool for named pipes. There is no listener object:
// each instance accepts exactly one client and is then replaced so the
// pool stays at capacity.

package pipe

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/eapache/queue"
)

// instance is one server end waiting for a client.
type instance interface {
	// Wait blocks until a client connects and returns the connection.
	Wait() (net.Conn, error)
	Close() error
}

type instanceFactory interface {
	// Create opens a new instance. first is set for the instance that
	// claims the name.
	Create(first bool) (instance, error)
	// Wake connects to the name once so a blocked Wait returns.
	Wake() error
	Addr() net.Addr
}

var errNoInstances = errors.New("no pipe instances available")

type instancePool struct {
	factory instanceFactory

	mu      sync.Mutex
	free    *queue.Queue
	waiting instance
	closed  bool
}

func newInstancePool(f instanceFactory, size int) (*instancePool, error) {
	if size < 1 {
		size = 1
	}
	p := &instancePool{factory: f, free: queue.New()}
	for i := 0; i < size; i++ {
		inst, err := f.Create(i == 0)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("pipe instance %d: %w", i, err)
		}
		p.free.Add(inst)
	}
	return p, nil
}

// Accept waits on the oldest instance, then opens its replacement.
func (p *instancePool) Accept() (net.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, net.ErrClosed
	}
	if p.free.Length() == 0 {
		inst, err := p.factory.Create(false)
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: %w", errNoInstances, err)
		}
		p.free.Add(inst)
	}
	inst := p.free.Remove().(instance)
	p.waiting = inst
	p.mu.Unlock()

	c, err := inst.Wait()
	if err != nil {
		_ = inst.Close()
	}
	repl, rerr := p.factory.Create(false)

	p.mu.Lock()
	p.waiting = nil
	if p.closed {
		p.mu.Unlock()
		if repl != nil {
			_ = repl.Close()
		}
		if c != nil {
			_ = c.Close()
		}
		return nil, net.ErrClosed
	}
	if rerr == nil {
		p.free.Add(repl)
	}
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return c, nil
}

// Size returns the number of instances waiting in the pool.
func (p *instancePool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.free.Length()
	if p.waiting != nil {
		n++
	}
	return n
}

// Close closes idle instances and wakes the one being waited on.
func (p *instancePool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var idle []instance
	for p.free.Length() > 0 {
		idle = append(idle, p.free.Remove().(instance))
	}
	waiting := p.waiting != nil
	p.mu.Unlock()

	for _, inst := range idle {
		_ = inst.Close()
	}
	if waiting {
		return p.factory.Wake()
	}
	return nil
}

// Addr implements net.Listener.
func (p *instancePool) Addr() net.Addr { return p.factory.Addr() }

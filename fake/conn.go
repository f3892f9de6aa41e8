// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake capabilities for testing handles without sockets.
// Provides predictable, controllable behavior for the accept and stream
// paths.

package fake

import (
	"bytes"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/momentics/hioload-wrap/api"
)

type readResult struct {
	data []byte
	err  error
}

// Conn is a scriptable api.Conn. Reads return pushed chunks in order;
// writes are recorded.
type Conn struct {
	mu         sync.Mutex
	reads      chan readResult
	kick       chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	written    bytes.Buffer
	writeCalls int
	maxWrite   int
	writeErr   error
	refs       int
}

var _ api.Conn = (*Conn)(nil)

// NewConn creates an open fake conn.
func NewConn() *Conn {
	return &Conn{
		reads:  make(chan readResult, 64),
		kick:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// PushRead queues data for the next Read.
func (c *Conn) PushRead(data []byte) {
	c.reads <- readResult{data: append([]byte(nil), data...)}
}

// PushError queues err as the result of the next Read.
func (c *Conn) PushError(err error) {
	c.reads <- readResult{err: err}
}

// PushEOF queues end of stream.
func (c *Conn) PushEOF() {
	c.PushError(io.EOF)
}

// Read implements io.Reader.
func (c *Conn) Read(p []byte) (int, error) {
	select {
	case r := <-c.reads:
		if r.err != nil {
			return 0, r.err
		}
		return copy(p, r.data), nil
	case <-c.kick:
		return 0, os.ErrDeadlineExceeded
	case <-c.closed:
		return 0, net.ErrClosed
	}
}

// SetReadDeadline supports only the two values swaps use: a time in the
// past interrupts a pending Read, the zero time clears it.
func (c *Conn) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		select {
		case <-c.kick:
		default:
		}
		return nil
	}
	if t.Before(time.Now()) {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// SetMaxWrite limits how many bytes one Write accepts.
func (c *Conn) SetMaxWrite(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxWrite = n
}

// SetWriteError makes every following Write fail with err.
func (c *Conn) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Write implements io.Writer, honoring SetMaxWrite.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return 0, net.ErrClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	n := len(p)
	if c.maxWrite > 0 && n > c.maxWrite {
		n = c.maxWrite
	}
	c.written.Write(p[:n])
	c.writeCalls++
	return n, nil
}

// Written returns a copy of everything written so far.
func (c *Conn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

// WriteCalls returns the number of successful Write calls.
func (c *Conn) WriteCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeCalls
}

// Close implements io.Closer. Pending reads fail with net.ErrClosed.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool { return c.isClosed() }

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Ref implements api.Refer.
func (c *Conn) Ref() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

// Unref implements api.Refer.
func (c *Conn) Unref() {
	c.mu.Lock()
	c.refs--
	c.mu.Unlock()
}

// Refs returns Ref calls minus Unref calls.
func (c *Conn) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

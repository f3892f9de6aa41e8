// File: fake/listener.go
// Author: momentics <momentics@gmail.com>

package fake

import (
	"net"
	"sync"
	"sync/atomic"
)

type acceptResult struct {
	conn net.Conn
	err  error
}

// Addr is the address every fake listener reports.
type Addr string

func (a Addr) Network() string { return "fake" }
func (a Addr) String() string  { return string(a) }

// Listener is a net.Listener whose Accept results are scripted.
type Listener struct {
	results  chan acceptResult
	closed   chan struct{}
	once     sync.Once
	attempts atomic.Int64
}

var _ net.Listener = (*Listener)(nil)

// NewListener creates an open listener with no queued results.
func NewListener() *Listener {
	return &Listener{
		results: make(chan acceptResult, 64),
		closed:  make(chan struct{}),
	}
}

// Push queues c as the next accepted connection.
func (l *Listener) Push(c net.Conn) {
	l.results <- acceptResult{conn: c}
}

// Fail queues err as the next Accept failure.
func (l *Listener) Fail(err error) {
	l.results <- acceptResult{err: err}
}

// Accept blocks until a scripted result is available or the listener
// is closed.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case r := <-l.results:
		l.attempts.Add(1)
		return r.conn, r.err
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

// Attempts returns the number of Accept calls that consumed a result.
func (l *Listener) Attempts() int {
	return int(l.attempts.Load())
}

// Close implements net.Listener.
func (l *Listener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

// Addr implements net.Listener.
func (l *Listener) Addr() net.Addr { return Addr("fake") }

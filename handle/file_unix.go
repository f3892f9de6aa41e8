// File: handle/file_unix.go
//go:build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/internal/clock"
	"github.com/momentics/hioload-wrap/loop"
	"golang.org/x/sys/unix"
)

// FileRetryDelay is how long a read or write waits after EAGAIN on a
// non-blocking descriptor.
const FileRetryDelay = 10 * time.Millisecond

// FileConn is the capability for descriptors that are not sockets:
// pipes, ttys and character devices. The descriptor is switched to
// non-blocking mode and polled with FileRetryDelay.
type FileConn struct {
	fd    int
	ka    *KeepAlive
	clock clock.Clock

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ api.Conn = (*FileConn)(nil)

// NewFileConn takes ownership of fd.
func NewFileConn(fd uintptr, l *loop.Loop, c clock.Clock) (*FileConn, error) {
	if err := unix.SetNonblock(int(fd), true); err != nil {
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	if c == nil {
		c = clock.Real()
	}
	return &FileConn{fd: int(fd), ka: NewKeepAlive(l), clock: c, done: make(chan struct{})}, nil
}

func (f *FileConn) Read(p []byte) (int, error) {
	for {
		n, err := f.do(func(fd int) (int, error) { return unix.Read(fd, p) })
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if !f.wait() {
				return 0, net.ErrClosed
			}
			continue
		case err != nil:
			return 0, err
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

func (f *FileConn) Write(p []byte) (int, error) {
	for {
		n, err := f.do(func(fd int) (int, error) { return unix.Write(fd, p) })
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if !f.wait() {
				return 0, net.ErrClosed
			}
			continue
		}
		return n, err
	}
}

func (f *FileConn) do(op func(fd int) (int, error)) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, net.ErrClosed
	}
	n, err := op(f.fd)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (f *FileConn) wait() bool {
	select {
	case <-f.clock.After(FileRetryDelay):
		return true
	case <-f.done:
		return false
	}
}

// Close closes the descriptor. A read waiting out EAGAIN returns
// net.ErrClosed.
func (f *FileConn) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.done)
	err := unix.Close(f.fd)
	f.mu.Unlock()
	f.ka.Unref()
	return err
}

func (f *FileConn) Ref()   { f.ka.Ref() }
func (f *FileConn) Unref() { f.ka.Unref() }

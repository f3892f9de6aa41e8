// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Capability objects a handle drives. One variant exists per transport
// (TCP socket, Unix or named-pipe socket, file-backed stream, websocket
// tunnel) and is chosen when the handle is constructed.

package api

import (
	"io"
	"net"
)

// Refer adjusts whether a resource keeps the event loop alive.
type Refer interface {
	Ref()
	Unref()
}

// Conn is the capability a stream handle reads from and writes to.
// Write may return a short count without error; callers loop.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
	Refer
}

// HalfCloser is implemented by capabilities that can shut down the write
// side while keeping reads open.
type HalfCloser interface {
	CloseWrite() error
}

// VectorWriter is implemented by capabilities backed by a socket that
// supports gathered writes. Written buffers are consumed from bufs.
type VectorWriter interface {
	WriteBuffers(bufs *net.Buffers) (int64, error)
}

// Addresser is implemented by capabilities that know their endpoints.
type Addresser interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// File: handle/netconn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Capability adapters over host connections.

package handle

import (
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/loop"
)

// KeepAlive holds at most one loop reference on behalf of a resource.
type KeepAlive struct {
	loop *loop.Loop
	mu   sync.Mutex
	held bool
}

// NewKeepAlive returns an unreferenced KeepAlive bound to l.
func NewKeepAlive(l *loop.Loop) *KeepAlive {
	return &KeepAlive{loop: l}
}

// Ref takes the loop reference if not already held.
func (k *KeepAlive) Ref() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.held {
		k.held = true
		k.loop.Ref()
	}
}

// Unref drops the loop reference if held.
func (k *KeepAlive) Unref() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.held {
		k.held = false
		k.loop.Unref()
	}
}

// NetConn adapts a net.Conn (TCP or Unix socket, or anything layered on
// one such as a TLS session) to api.Conn.
type NetConn struct {
	conn net.Conn
	ka   *KeepAlive
}

var (
	_ api.Conn         = (*NetConn)(nil)
	_ api.HalfCloser   = (*NetConn)(nil)
	_ api.VectorWriter = (*NetConn)(nil)
	_ api.Addresser    = (*NetConn)(nil)
)

// WrapNetConn wraps c. The adapter starts unreferenced; the owning handle
// decides through SetRefer.
func WrapNetConn(c net.Conn, l *loop.Loop) *NetConn {
	return &NetConn{conn: c, ka: NewKeepAlive(l)}
}

// Raw returns the wrapped connection.
func (c *NetConn) Raw() net.Conn { return c.conn }

func (c *NetConn) Read(p []byte) (int, error)  { return c.conn.Read(p) }
func (c *NetConn) Write(p []byte) (int, error) { return c.conn.Write(p) }

// Close closes the connection and drops the loop reference.
func (c *NetConn) Close() error {
	c.ka.Unref()
	return c.conn.Close()
}

func (c *NetConn) Ref()   { c.ka.Ref() }
func (c *NetConn) Unref() { c.ka.Unref() }

// CloseWrite half-closes sockets that support it.
func (c *NetConn) CloseWrite() error {
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return api.ErrNotSupported
}

// WriteBuffers writes bufs with a single gathered write where the socket
// allows it.
func (c *NetConn) WriteBuffers(bufs *net.Buffers) (int64, error) {
	return bufs.WriteTo(c.conn)
}

func (c *NetConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *NetConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// SetReadDeadline lets a swap interrupt a read blocked on this conn.
func (c *NetConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}
